package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// EmailSink mails late-arrival notices through SendGrid.
type EmailSink struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// EmailOption customises an EmailSink.
type EmailOption func(*EmailSink)

// WithSendGridHost points the sink at another API host (used by tests).
func WithSendGridHost(host string) EmailOption {
	return func(s *EmailSink) {
		if host != "" {
			s.host = host
		}
	}
}

// WithSubjectPrefix prepends prefix to every subject line.
func WithSubjectPrefix(prefix string) EmailOption {
	return func(s *EmailSink) { s.subjPrefix = prefix }
}

// NewEmailSink builds a SendGrid-backed sink.
func NewEmailSink(apiKey, fromName, fromAddress string, opts ...EmailOption) *EmailSink {
	s := &EmailSink{
		key:        apiKey,
		host:       sendgridHost,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: "[Attendance] ",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyLate sends one email. Students without an address are skipped.
func (s *EmailSink) NotifyLate(ctx context.Context, arrival LateArrival) error {
	if arrival.StudentEmail == "" {
		return nil
	}

	to := sgmail.NewEmail(arrival.StudentName, arrival.StudentEmail)
	subject := s.subjPrefix + "Late arrival for " + arrival.CourseCode
	text := arrival.Message()
	html := "<p>" + text + "</p>"
	msg := sgmail.NewSingleEmail(s.from, subject, to, text, html)

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(msg)

	res, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
