package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate"
)

// Log writes notices to a zap logger instead of delivering them. Codes are
// redacted unless IncludeCode is set, which is for local development only.
type Log struct {
	logger      *zap.Logger
	includeCode bool
}

var _ passgate.Notifier = (*Log)(nil)

func NewLog(logger *zap.Logger, includeCode bool) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger, includeCode: includeCode}
}

func (l *Log) Notify(_ context.Context, n passgate.Notice) error {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("email", n.Email),
	}
	switch n.Kind {
	case passgate.NoticeCode:
		fields = append(fields, zap.String("purpose", string(n.Purpose)), zap.Time("expires_at", n.ExpiresAt))
		if l.includeCode {
			fields = append(fields, zap.String("code", n.Code))
		}
	case passgate.NoticeLockout:
		fields = append(fields, zap.Time("locked_until", n.LockedUntil), zap.Int("attempts", n.Attempts))
	}
	l.logger.Info("notify: notice", fields...)
	return nil
}

// Multi fans a notice out to every notifier and returns the first error.
type Multi []passgate.Notifier

func (m Multi) Notify(ctx context.Context, n passgate.Notice) error {
	var first error
	for _, target := range m {
		if err := target.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
