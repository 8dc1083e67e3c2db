package service

import (
	"context"

	"opsdash/internal/audit"
	id "opsdash/pkg/domain"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/privacy"
	"opsdash/pkg/requestcontext"
)

func (s *Service) record(ctx context.Context, kind audit.Kind, principalID id.PrincipalID, details map[string]any) {
	s.logger.InfoContext(ctx, string(kind),
		"principal_id", principalIDAttr(principalID),
		"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, kind, principalID, details, requestcontext.ClientIP(ctx))
}

func (s *Service) failedLogin(ctx context.Context, principalID id.PrincipalID, email, reason string) {
	s.metrics.IncrementAuthFailures(reason)
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"principal_id", principalIDAttr(principalID),
		"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, audit.KindFailedLogin, principalID,
		map[string]any{"email": email, "reason": reason},
		requestcontext.ClientIP(ctx))
}

// authFailure logs a rejected refresh. Internal errors log at error level.
func (s *Service) authFailure(ctx context.Context, reason string, err error) {
	s.metrics.IncrementAuthFailures(reason)
	args := []any{
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	}
	if err != nil {
		args = append(args, "error", err)
	}
	if err != nil && dErrors.CodeOf(err) == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "auth failure", args...)
		return
	}
	s.logger.WarnContext(ctx, "auth failure", args...)
}

func principalIDAttr(principalID id.PrincipalID) string {
	if principalID.IsNil() {
		return ""
	}
	return principalID.String()
}
