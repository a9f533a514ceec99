package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/starrysand/api/internal/platform/httpx"
	"github.com/starrysand/api/internal/platform/requestctx"
	"github.com/starrysand/api/internal/services"
)

const sessionIDParam = "sessionID"

// OrderSessionHandlers exposes the order configurator for anonymous browser sessions.
type OrderSessionHandlers struct {
	sessions           services.OrderSessions
	discountLimiter    rateLimiter
	sessionMiddlewares []func(http.Handler) http.Handler
}

// OrderSessionOption customises OrderSessionHandlers.
type OrderSessionOption func(*OrderSessionHandlers)

// WithDiscountRateLimit caps discount redemptions per session within window.
func WithDiscountRateLimit(limit int, window time.Duration, clock func() time.Time) OrderSessionOption {
	return func(h *OrderSessionHandlers) {
		h.discountLimiter = newWindowRateLimiter(limit, window, clock)
	}
}

// WithSessionMiddlewares adds middleware to every per-session route. They run after the
// session id has been placed on the request context.
func WithSessionMiddlewares(mw ...func(http.Handler) http.Handler) OrderSessionOption {
	return func(h *OrderSessionHandlers) {
		h.sessionMiddlewares = append(h.sessionMiddlewares, mw...)
	}
}

// NewOrderSessionHandlers constructs order session handlers.
func NewOrderSessionHandlers(sessions services.OrderSessions, opts ...OrderSessionOption) *OrderSessionHandlers {
	h := &OrderSessionHandlers{sessions: sessions}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /orders/sessions endpoints.
func (h *OrderSessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{"+sessionIDParam+"}", func(sr chi.Router) {
		sr.Use(sessionContext)
		for _, mw := range h.sessionMiddlewares {
			if mw != nil {
				sr.Use(mw)
			}
		}
		sr.Get("/", h.getSession)
		sr.Delete("/", h.deleteSession)
		sr.Put("/size", h.selectSize)
		sr.Post("/craft", h.selectCraft)
		sr.Post("/addons", h.toggleAddon)
		sr.Delete("/addons", h.removeAddon)
		sr.Post("/rush", h.selectRush)
		sr.Put("/packaging", h.selectPackaging)
		sr.Post("/discounts", h.addDiscount)
		sr.Delete("/discounts/{code}", h.removeDiscount)
		sr.Put("/consultation", h.setConsultation)
		sr.Put("/modal", h.setModal)
		sr.Delete("/notification", h.clearNotification)
		sr.Post("/clear", h.clearOrder)
		sr.Get("/summary", h.getSummary)
	})
}

// sessionContext places the route's session id on the request context.
func sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(chi.URLParam(r, sessionIDParam))
		ctx := requestctx.WithSessionID(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *OrderSessionHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *OrderSessionHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	view, err := h.sessions.Create(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+view.SessionID)
	httpx.WriteJSON(w, http.StatusCreated, newOrderViewPayload(view))
}

func (h *OrderSessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.Get(ctx, id)
	})
}

func (h *OrderSessionHandlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	if err := h.sessions.Delete(ctx, requestctx.SessionID(ctx)); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderSessionHandlers) selectSize(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SelectSize(ctx, id, req.Name)
	})
}

func (h *OrderSessionHandlers) selectCraft(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SelectCraft(ctx, id, req.Name)
	})
}

func (h *OrderSessionHandlers) toggleAddon(w http.ResponseWriter, r *http.Request) {
	var req addonRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.ToggleAddon(ctx, id, req.Category, req.Name)
	})
}

func (h *OrderSessionHandlers) removeAddon(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := query.Get("category")
	name := query.Get("name")
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.RemoveAddon(ctx, id, category, name)
	})
}

func (h *OrderSessionHandlers) selectRush(w http.ResponseWriter, r *http.Request) {
	var req rushRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SelectRush(ctx, id, req.ID)
	})
}

func (h *OrderSessionHandlers) selectPackaging(w http.ResponseWriter, r *http.Request) {
	var req packagingRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SelectPackaging(ctx, id, req.Title)
	})
}

func (h *OrderSessionHandlers) addDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req discountRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	if h.discountLimiter != nil {
		if ok, retryAfter := h.discountLimiter.Allow(requestctx.SessionID(ctx)); !ok {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many discount attempts, try again later", http.StatusTooManyRequests).
				WithDetails(map[string]any{"retryAfterSeconds": seconds}))
			return
		}
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.AddDiscount(ctx, id, req.Code)
	})
}

func (h *OrderSessionHandlers) removeDiscount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.RemoveDiscount(ctx, id, code)
	})
}

func (h *OrderSessionHandlers) setConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SetConsultation(ctx, id, *req.Enabled, req.Note)
	})
}

func (h *OrderSessionHandlers) setModal(w http.ResponseWriter, r *http.Request) {
	var req modalRequest
	if !decodeOrWrite(w, r, &req) {
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.SetModalOpen(ctx, id, *req.Open)
	})
}

func (h *OrderSessionHandlers) clearNotification(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.ClearNotification(ctx, id)
	})
}

func (h *OrderSessionHandlers) clearOrder(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context, id string) (services.OrderView, error) {
		return h.sessions.ClearOrder(ctx, id)
	})
}

func (h *OrderSessionHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	format := services.SummaryFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	out, err := h.sessions.Summary(ctx, requestctx.SessionID(ctx), format)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Body))
}

func (h *OrderSessionHandlers) respond(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (services.OrderView, error)) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	view, err := op(ctx, requestctx.SessionID(ctx))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderViewPayload(view))
}

func decodeOrWrite(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeRequest(r, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	return false
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "order session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_item_not_found", trimErrorPrefix(err), http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimErrorPrefix(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrRushUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rush_unavailable", "rush orders are paused while the workshop is busy", http.StatusConflict))
	case errors.Is(err, services.ErrDiscountsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("discounts_disabled", "discount codes are not accepted right now", http.StatusForbidden))
	case errors.Is(err, services.ErrSessionLimit):
		httpx.WriteError(ctx, w, httpx.NewError("session_limit", "too many active order sessions", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("order session request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

// trimErrorPrefix drops the "order session: ..." sentinel text and keeps the detail.
func trimErrorPrefix(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		return msg[idx+2:]
	}
	return msg
}
