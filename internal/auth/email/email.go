package email

import (
	"context"
	"log/slog"
	"strings"

	"opsdash/pkg/requestcontext"
)

// IsValidEmail performs lightweight validation of an email address format.
func IsValidEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	if strings.Contains(domain, "@") {
		return false
	}
	return strings.Contains(domain, ".")
}

// Mask keeps the first rune of the local part and the full domain, e.g.
// "jane.doe@ops.example" -> "j***@ops.example".
func Mask(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	runes := []rune(local)
	return string(runes[0]) + "***@" + domain
}

// LogMailer stands in for a delivery provider. It only logs that a reset
// was requested, with the address masked.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email string) error {
	m.logger.InfoContext(ctx, "password reset instructions queued",
		"request_id", requestcontext.RequestID(ctx),
		"email", Mask(email),
	)
	return nil
}
