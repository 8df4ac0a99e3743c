package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes reset links to the debug log instead of mailing them.
// Config refuses it in production.
type LogSender struct {
	logger *zap.Logger
	links  *LinkBuilder
}

func NewLogSender(logger *zap.Logger, links *LinkBuilder) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, links: links}
}

func (s *LogSender) SendResetLink(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("Password reset link",
		zap.String("email", email),
		zap.String("subject", resetSubject),
		zap.String("link", s.links.Link(token)),
	)
	return nil
}
