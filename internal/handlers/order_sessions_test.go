package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starrysand/api/internal/catalog"
	"github.com/starrysand/api/internal/platform/idempotency"
	"github.com/starrysand/api/internal/services"
)

var limiterNow = time.Date(2025, 3, 8, 20, 0, 0, 0, time.UTC)

type orderTestServer struct {
	t      *testing.T
	router http.Handler
}

type orderTestConfig struct {
	busy             bool
	disableDiscounts bool
	discountLimit    int
	idempotent       bool
	limiterClock     func() time.Time
}

func newOrderTestServer(t *testing.T, cfg orderTestConfig) *orderTestServer {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	if cfg.busy {
		cat = cat.WithSiteBusy(true)
	}

	svc, err := services.NewOrderSessionService(services.OrderSessionServiceDeps{
		Catalog:          cat,
		Discounts:        cat.Discounts(),
		DisableDiscounts: cfg.disableDiscounts,
	})
	require.NoError(t, err)

	opts := []OrderSessionOption{}
	if cfg.discountLimit > 0 {
		clock := cfg.limiterClock
		if clock == nil {
			clock = func() time.Time { return limiterNow }
		}
		opts = append(opts, WithDiscountRateLimit(cfg.discountLimit, time.Minute, clock))
	}
	if cfg.idempotent {
		opts = append(opts, WithSessionMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithOptionalKey())))
	}

	router := NewRouter(
		WithPublicRoutes(NewCatalogHandlers(cat).Routes),
		WithOrderRoutes(NewOrderSessionHandlers(svc, opts...).Routes),
	)
	return &orderTestServer{t: t, router: router}
}

func (s *orderTestServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *orderTestServer) createSession() string {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/api/v1/orders/sessions", "")
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	view := decodeView(s.t, rr)
	require.NotEmpty(s.t, view.SessionID)
	assert.Equal(s.t, "/api/v1/orders/sessions/"+view.SessionID, rr.Header().Get("Location"))
	return view.SessionID
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) orderViewPayload {
	t.Helper()
	var view orderViewPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view), rr.Body.String())
	return view
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	code, _ := body["error"].(string)
	return code
}

func TestOrderSessions_ConfigureAndQuote(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{})
	id := srv.createSession()
	base := "/api/v1/orders/sessions/" + id

	rr := srv.do(http.MethodPut, base+"/size", `{"name":"随身卡包级"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeView(t, rr).WishPrompt)

	rr = srv.do(http.MethodPost, base+"/addons", `{"category":"Visual Effect","name":"⚡ 反光工艺"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = srv.do(http.MethodPost, base+"/addons", `{"category":"Visual Effect","name":"🔮 表面工艺 (视觉膜)"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	view := decodeView(t, rr)
	assert.Equal(t, "54", view.Quote.FinalPrice.String())
	assert.True(t, view.Quote.Breakdown.SmallSizeAddonDiscount)
	assert.Len(t, view.State.Addons, 2)

	rr = srv.do(http.MethodDelete, base+"/addons?category=Visual+Effect&name=%E2%9A%A1+%E5%8F%8D%E5%85%89%E5%B7%A5%E8%89%BA", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeView(t, rr).State.Addons, 1)

	rr = srv.do(http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "49", decodeView(t, rr).Quote.FinalPrice.String())
}

func TestOrderSessions_DiscountFlow(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{})
	id := srv.createSession()
	base := "/api/v1/orders/sessions/" + id

	rr := srv.do(http.MethodPut, base+"/size", `{"name":"记忆珍藏版"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(http.MethodPost, base+"/discounts", `{"code":"NEW"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(http.MethodPost, base+"/discounts", `{"code":"MINUS5"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	view := decodeView(t, rr)
	require.NotNil(t, view.State.Notification)
	assert.Equal(t, "error", view.State.Notification.Type)
	require.Len(t, view.State.Discounts, 1)
	assert.Equal(t, "NEW", view.State.Discounts[0].Code)

	rr = srv.do(http.MethodDelete, base+"/notification", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decodeView(t, rr).State.Notification)

	rr = srv.do(http.MethodDelete, base+"/discounts/new", "")
	require.Equal(t, http.StatusOK, rr.Code)
	view = decodeView(t, rr)
	assert.Empty(t, view.State.Discounts)
	assert.Equal(t, "73", view.Quote.FinalPrice.String())
}

func TestOrderSessions_ErrorMapping(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{})
	id := srv.createSession()
	base := "/api/v1/orders/sessions/" + id

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown session", http.MethodGet, "/api/v1/orders/sessions/missing", "", http.StatusNotFound, "session_not_found"},
		{"unknown size", http.MethodPut, base + "/size", `{"name":"巨无霸"}`, http.StatusNotFound, "catalog_item_not_found"},
		{"missing field", http.MethodPut, base + "/size", `{}`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPut, base + "/size", `{"name":"记忆珍藏版","price":1}`, http.StatusBadRequest, "invalid_request"},
		{"empty body", http.MethodPost, base + "/rush", ``, http.StatusBadRequest, "invalid_request"},
		{"trailing data", http.MethodPost, base + "/craft", `{"name":"翻盖款"}{}`, http.StatusBadRequest, "invalid_request"},
		{"modal flag required", http.MethodPut, base + "/modal", `{}`, http.StatusBadRequest, "invalid_request"},
		{"remove addon without name", http.MethodDelete, base + "/addons?category=Hidden", "", http.StatusBadRequest, "invalid_request"},
		{"bad summary format", http.MethodGet, base + "/summary?format=pdf", "", http.StatusBadRequest, "invalid_request"},
		{"oversized body", http.MethodPut, base + "/size", `{"name":"` + strings.Repeat("a", maxOrderBodySize) + `"}`, http.StatusRequestEntityTooLarge, "payload_too_large"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tc.wantCode, decodeErrorCode(t, rr))
		})
	}
}

func TestOrderSessions_BusySiteRejectsRush(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{busy: true})
	id := srv.createSession()

	rr := srv.do(http.MethodPost, "/api/v1/orders/sessions/"+id+"/rush", `{"id":"rush-speed"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "rush_unavailable", decodeErrorCode(t, rr))
}

func TestOrderSessions_DiscountsDisabled(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{disableDiscounts: true})
	id := srv.createSession()

	rr := srv.do(http.MethodPost, "/api/v1/orders/sessions/"+id+"/discounts", `{"code":"WOLF"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "discounts_disabled", decodeErrorCode(t, rr))
}

func TestOrderSessions_DiscountAttemptsThrottled(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{discountLimit: 2})
	id := srv.createSession()
	path := "/api/v1/orders/sessions/" + id + "/discounts"

	for i := 0; i < 2; i++ {
		rr := srv.do(http.MethodPost, path, `{"code":"GUESS"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := srv.do(http.MethodPost, path, `{"code":"GUESS"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", decodeErrorCode(t, rr))
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(60), body["retryAfterSeconds"])

	other := srv.createSession()
	rr = srv.do(http.MethodPost, "/api/v1/orders/sessions/"+other+"/discounts", `{"code":"GUESS"}`)
	assert.Equal(t, http.StatusOK, rr.Code, "limits are per session")
}

func TestOrderSessions_ThrottledDiscountRetriesAfterWindow(t *testing.T) {
	now := limiterNow
	srv := newOrderTestServer(t, orderTestConfig{
		discountLimit: 1,
		idempotent:    true,
		limiterClock:  func() time.Time { return now },
	})
	id := srv.createSession()
	path := "/api/v1/orders/sessions/" + id + "/discounts"

	rr := srv.do(http.MethodPost, path, `{"code":"GUESS"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(http.MethodPost, path, `{"code":"WOLF"}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	now = now.Add(2 * time.Minute)
	rr = srv.do(http.MethodPost, path, `{"code":"WOLF"}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, rr.Header().Get("X-Idempotent-Replay"))

	rr = srv.do(http.MethodPost, path, `{"code":"WOLF"}`, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("X-Idempotent-Replay"))
}

func TestOrderSessions_IdempotentToggleIsNotReapplied(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{idempotent: true})
	id := srv.createSession()
	path := "/api/v1/orders/sessions/" + id + "/addons"
	body := `{"category":"Hidden","name":"夜光效果"}`

	first := srv.do(http.MethodPost, path, body, "Idempotency-Key", "toggle-1")
	require.Equal(t, http.StatusOK, first.Code)
	second := srv.do(http.MethodPost, path, body, "Idempotency-Key", "toggle-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Len(t, decodeView(t, second).State.Addons, 1)

	rr := srv.do(http.MethodGet, "/api/v1/orders/sessions/"+id, "")
	assert.Len(t, decodeView(t, rr).State.Addons, 1)

	third := srv.do(http.MethodPost, path, body)
	assert.Empty(t, decodeView(t, third).State.Addons, "requests without a key are applied")
}

func TestOrderSessions_ConsultationAndSummary(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{})
	id := srv.createSession()
	base := "/api/v1/orders/sessions/" + id

	rr := srv.do(http.MethodPut, base+"/size", `{"name":"记忆珍藏版"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(http.MethodGet, base+"/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "💰 最终报价：73r")

	rr = srv.do(http.MethodPut, base+"/consultation", `{"enabled":true,"note":"<i>想要</i>极光色"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeView(t, rr)
	assert.True(t, view.State.ConsultationMode)
	assert.Equal(t, "想要极光色", view.State.ConsultationNote)

	rr = srv.do(http.MethodGet, base+"/summary?format=markdown", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "### 委托备注")

	rr = srv.do(http.MethodPut, base+"/modal", `{"open":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(http.MethodPost, base+"/clear", "")
	require.Equal(t, http.StatusOK, rr.Code)
	view = decodeView(t, rr)
	assert.Nil(t, view.State.Size)
	assert.True(t, view.State.ModalOpen)
	assert.False(t, view.State.ConsultationMode)

	rr = srv.do(http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = srv.do(http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCatalogHandlers_ListsCatalogWithoutDiscounts(t *testing.T) {
	srv := newOrderTestServer(t, orderTestConfig{busy: true})

	rr := srv.do(http.MethodGet, "/api/v1/public/catalog", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body catalogResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Site.Busy)
	assert.False(t, body.Site.RushAvailable)
	assert.Len(t, body.Sizes, 5)
	assert.Len(t, body.Crafts, 3)
	assert.Len(t, body.AddonCategories, 5)
	assert.Len(t, body.RushTiers, 3)
	assert.Len(t, body.Packaging, 2)
	assert.NotContains(t, rr.Body.String(), "WOLF")
}
