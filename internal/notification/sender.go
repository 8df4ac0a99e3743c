// Package notification delivers password reset links to account owners.
package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/prperemyshlev/user-auth-service/internal/config"
	"go.uber.org/zap"
)

const resetSubject = "Reset Your Password"

// Sender delivers a reset token to the owner of email.
type Sender interface {
	SendResetLink(ctx context.Context, email, token string) error
}

// NewSender builds the sender selected by cfg.Driver.
func NewSender(cfg config.EmailConfig, logger *zap.Logger) (Sender, error) {
	links, err := NewLinkBuilder(cfg.ResetURL)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case config.EmailDriverSMTP:
		return NewSMTPSender(SMTPConfig{
			Addr:        cfg.SMTPAddress(),
			Username:    cfg.Username,
			Password:    cfg.Password,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
			Timeout:     cfg.Timeout.Duration,
		}, links), nil
	case config.EmailDriverLog, "":
		return NewLogSender(logger, links), nil
	default:
		return nil, fmt.Errorf("unsupported email driver %q", cfg.Driver)
	}
}

// LinkBuilder renders the URL a user follows to reset their password.
type LinkBuilder struct {
	base *url.URL
}

func NewLinkBuilder(resetURL string) (*LinkBuilder, error) {
	u, err := url.Parse(resetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid reset url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid reset url %q: scheme and host are required", resetURL)
	}
	return &LinkBuilder{base: u}, nil
}

// Link returns the reset URL with token set as the "token" query parameter.
func (b *LinkBuilder) Link(token string) string {
	u := *b.base
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func resetBody(link string) string {
	var b strings.Builder
	b.WriteString("We received a request to reset the password for your account.\r\n\r\n")
	b.WriteString("Follow the link below to choose a new password:\r\n")
	b.WriteString(link)
	b.WriteString("\r\n\r\nIf you did not request a password reset, you can ignore this email.\r\n")
	return b.String()
}
