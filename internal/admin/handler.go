package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"opsdash/internal/audit"
	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/httputil"
	"opsdash/pkg/requestcontext"
)

// Handler serves the admin security views.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// New creates a new admin handler
func New(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin routes behind guards, applied in order. Callers
// pass authentication first and the admin role check second.
func (h *Handler) Register(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		for _, g := range guards {
			if g != nil {
				r.Use(g)
			}
		}
		r.Get("/admin/security/events", h.HandleSecurityEvents)
		r.Get("/admin/audit", h.HandleAuditLog)
	})
}

// EventsResponse wraps a page of events.
type EventsResponse struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
}

// HandleSecurityEvents returns the recent significant events, newest first.
func (h *Handler) HandleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.SecurityEvents(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read security events",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(events))
}

// HandleAuditLog returns durable audit records, newest first.
// Query: limit (1-200, default 50), kind (optional event kind).
func (h *Handler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	kind, err := parseKind(r.URL.Query().Get("kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.service.AuditEvents(ctx, limit, kind)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read audit log",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "admin audit events retrieved",
		"request_id", requestID,
		"count", len(events),
	)
	httputil.WriteJSON(w, http.StatusOK, toEventsResponse(events))
}

func toEventsResponse(events []audit.Event) EventsResponse {
	if events == nil {
		events = []audit.Event{}
	}
	return EventsResponse{Events: events, Total: len(events)}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > MaxLimit {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and "+strconv.Itoa(MaxLimit))
	}
	return limit, nil
}

func parseKind(raw string) (audit.Kind, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	if len(raw) > 64 {
		return "", dErrors.New(dErrors.CodeValidation, "kind is invalid")
	}
	for _, c := range raw {
		if (c < 'A' || c > 'Z') && c != '_' {
			return "", dErrors.New(dErrors.CodeValidation, "kind is invalid")
		}
	}
	return audit.Kind(raw), nil
}
