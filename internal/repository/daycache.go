package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/cache"
)

const (
	dayMarkPrefix = "attendance:mark:"
	// DayMarkTTL outlives any calendar day so a marker never expires before
	// its date key stops being "today".
	DayMarkTTL = 36 * time.Hour
)

// CachedLedger answers Exists from Redis markers when it can. Commit always
// goes to the wrapped ledger; the marker is written only after it succeeds.
type CachedLedger struct {
	next   attendance.Ledger
	cache  cache.Cache
	logger *zap.Logger
}

var _ attendance.Ledger = (*CachedLedger)(nil)

// NewCachedLedger wraps next with a day-marker cache.
func NewCachedLedger(next attendance.Ledger, c cache.Cache, logger *zap.Logger) *CachedLedger {
	return &CachedLedger{next: next, cache: c, logger: logger.Named("day_cache")}
}

func (l *CachedLedger) Exists(ctx context.Context, key attendance.DayKey) (bool, error) {
	cacheKey := dayMarkPrefix + key.String()
	if _, err := l.cache.Get(ctx, cacheKey); err == nil {
		return true, nil
	} else if !cache.IsMiss(err) {
		l.logger.Warn("day marker lookup failed", zap.String("key", cacheKey), zap.Error(err))
	}

	exists, err := l.next.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		l.mark(ctx, cacheKey)
	}
	return exists, nil
}

func (l *CachedLedger) Commit(ctx context.Context, rec *attendance.Record) error {
	if err := l.next.Commit(ctx, rec); err != nil {
		return err
	}
	l.mark(ctx, dayMarkPrefix+rec.Key().String())
	return nil
}

func (l *CachedLedger) mark(ctx context.Context, cacheKey string) {
	if err := l.cache.Set(ctx, cacheKey, "1", DayMarkTTL); err != nil {
		l.logger.Warn("day marker write failed", zap.String("key", cacheKey), zap.Error(err))
	}
}
