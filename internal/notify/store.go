package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KindLateArrival tags in-app notifications produced by StoreSink.
const KindLateArrival = "late_arrival"

// Recipient roles. Student and admin ids are separate namespaces, so an
// inbox is keyed by both.
const (
	RecipientStudent = "student"
	RecipientAdmin   = "admin"
)

// Recipient identifies one inbox.
type Recipient struct {
	Role string
	ID   string
}

// Notification is an in-app message shown to a student or admin.
type Notification struct {
	ID            string    `json:"id"`
	RecipientRole string    `json:"recipientRole"`
	RecipientID   string    `json:"recipientId"`
	Kind          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Recipient returns the inbox n belongs to.
func (n *Notification) Recipient() Recipient {
	return Recipient{Role: n.RecipientRole, ID: n.RecipientID}
}

// Store persists in-app notifications.
type Store interface {
	SaveNotification(ctx context.Context, n *Notification) error
}

// StoreSink records a late arrival in the student's in-app inbox.
type StoreSink struct {
	store Store
	now   func() time.Time
}

// NewStoreSink builds a sink writing to store.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store, now: time.Now}
}

func (s *StoreSink) NotifyLate(ctx context.Context, arrival LateArrival) error {
	return s.store.SaveNotification(ctx, &Notification{
		ID:            uuid.NewString(),
		RecipientRole: RecipientStudent,
		RecipientID:   arrival.StudentID,
		Kind:          KindLateArrival,
		Title:         "Late arrival recorded",
		Message:       arrival.Message(),
		CreatedAt:     s.now().UTC(),
	})
}
