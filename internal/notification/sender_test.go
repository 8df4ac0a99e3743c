package notification

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/prperemyshlev/user-auth-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type capturedMail struct {
	from, rcpt string
	data       string
}

// fakeSMTP accepts a single session and records the envelope and body.
func fakeSMTP(t *testing.T, rejectRcpt bool) (string, <-chan capturedMail) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan capturedMail, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		var m capturedMail
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				_ = tp.PrintfLine("250 localhost")
			case strings.HasPrefix(cmd, "MAIL FROM:"):
				m.from = line[len("MAIL FROM:"):]
				_ = tp.PrintfLine("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO:"):
				if rejectRcpt {
					_ = tp.PrintfLine("550 no such user")
					continue
				}
				m.rcpt = line[len("RCPT TO:"):]
				_ = tp.PrintfLine("250 OK")
			case cmd == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				m.data = string(data)
				_ = tp.PrintfLine("250 queued")
			case cmd == "QUIT":
				_ = tp.PrintfLine("221 bye")
				out <- m
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()

	return ln.Addr().String(), out
}

func newLinks(t *testing.T) *LinkBuilder {
	t.Helper()
	links, err := NewLinkBuilder("https://app.example.com/reset-password?lang=en")
	require.NoError(t, err)
	return links
}

func TestSMTPSenderDeliversResetLink(t *testing.T) {
	addr, got := fakeSMTP(t, false)
	sender := NewSMTPSender(SMTPConfig{
		Addr:        addr,
		FromAddress: "no-reply@example.com",
		FromName:    "Auth",
		Timeout:     5 * time.Second,
	}, newLinks(t))

	require.NoError(t, sender.SendResetLink(context.Background(), "ann@example.com", "tok123"))

	select {
	case m := <-got:
		assert.Equal(t, "<no-reply@example.com>", m.from)
		assert.Equal(t, "<ann@example.com>", m.rcpt)
		assert.Contains(t, m.data, "Subject: Reset Your Password")
		assert.Contains(t, m.data, "To: ann@example.com")
		assert.Contains(t, m.data, "https://app.example.com/reset-password?lang=en&token=tok123")
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not complete")
	}
}

func TestSMTPSenderReportsRejection(t *testing.T) {
	addr, _ := fakeSMTP(t, true)
	sender := NewSMTPSender(SMTPConfig{Addr: addr, FromAddress: "no-reply@example.com"}, newLinks(t))

	err := sender.SendResetLink(context.Background(), "ann@example.com", "tok123")
	assert.Error(t, err)
}

func TestSMTPSenderUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(SMTPConfig{Addr: addr, FromAddress: "no-reply@example.com", Timeout: time.Second}, newLinks(t))
	assert.Error(t, sender.SendResetLink(context.Background(), "ann@example.com", "tok123"))
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Addr: "127.0.0.1:1", FromAddress: "no-reply@example.com"}, newLinks(t))
	assert.Error(t, sender.SendResetLink(context.Background(), "not an address", "tok123"))
}

func TestLogSenderLogsLinkAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sender := NewLogSender(zap.New(core), newLinks(t))

	require.NoError(t, sender.SendResetLink(context.Background(), "ann@example.com", "tok123"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ann@example.com", fields["email"])
	assert.Equal(t, "https://app.example.com/reset-password?lang=en&token=tok123", fields["link"])
}

func TestLogSenderKeepsTokenOutOfInfoLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogSender(zap.New(core), newLinks(t))

	require.NoError(t, sender.SendResetLink(context.Background(), "ann@example.com", "tok123"))
	assert.Zero(t, logs.Len())
}

func TestLogSenderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := NewLogSender(nil, newLinks(t))
	assert.ErrorIs(t, sender.SendResetLink(ctx, "ann@example.com", "tok"), context.Canceled)
}

func TestNewSender(t *testing.T) {
	s, err := NewSender(config.EmailConfig{Driver: config.EmailDriverLog, ResetURL: "http://localhost/reset"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = NewSender(config.EmailConfig{Driver: config.EmailDriverSMTP, SMTPHost: "mail", SMTPPort: 25, ResetURL: "http://localhost/reset"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSender(config.EmailConfig{Driver: config.EmailDriverLog, ResetURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSender(config.EmailConfig{Driver: "fax", ResetURL: "http://localhost/reset"}, zap.NewNop())
	assert.Error(t, err)
}
