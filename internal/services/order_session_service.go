package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/order"
	"github.com/starrysand/api/internal/platform/observability"
	"github.com/starrysand/api/internal/summary"
)

var (
	errOrderSessionCatalogRequired   = errors.New("order session service: catalog is required")
	errOrderSessionDiscountsRequired = errors.New("order session service: discount lookup is required")
)

const (
	defaultOrderSessionTTL = 2 * time.Hour
	defaultMaxSessions     = 10000
	maxIdentifierLength    = 128
)

// Mutation names reported in logs and the mutations metric.
const (
	opSelectSize        = "select_size"
	opSelectCraft       = "select_craft"
	opToggleAddon       = "toggle_addon"
	opRemoveAddon       = "remove_addon"
	opSelectRush        = "select_rush"
	opSelectPackaging   = "select_packaging"
	opAddDiscount       = "add_discount"
	opRemoveDiscount    = "remove_discount"
	opSetConsultation   = "set_consultation"
	opSetModal          = "set_modal"
	opClearNotification = "clear_notification"
	opClearOrder        = "clear_order"
)

// OrderSessionServiceDeps wires the catalog and runtime collaborators for order sessions.
type OrderSessionServiceDeps struct {
	Catalog   OrderCatalog
	Discounts order.DiscountLookup
	Clock     func() time.Time
	Logger    *zap.Logger
	Meter     metric.Meter
	// TTL is the inactivity window after which a session expires.
	TTL         time.Duration
	MaxSessions int
	// DisableDiscounts rejects every discount redemption with ErrDiscountsDisabled.
	DisableDiscounts bool
	IDGenerator      func() string
}

// OrderSessionService hosts one order store per anonymous browser session.
type OrderSessionService struct {
	catalog          OrderCatalog
	discounts        order.DiscountLookup
	now              func() time.Time
	logger           *zap.Logger
	metrics          *orderSessionMetrics
	ttl              time.Duration
	maxSessions      int
	discountsEnabled bool
	newID            func() string
	notePolicy       *bluemonday.Policy

	mu       sync.Mutex
	sessions map[string]*orderSession
}

type orderSession struct {
	mu        sync.Mutex
	id        string
	store     *order.Store
	createdAt time.Time
	updatedAt time.Time
}

// OrderView is the state returned after every session operation.
type OrderView struct {
	SessionID string
	State     order.State
	Quote     domain.Quote
	// WishPrompt is set when the selected size invites the free wish-mode bonus.
	WishPrompt    bool
	RushAvailable bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SummaryFormat selects the rendering used by Summary.
type SummaryFormat string

const (
	SummaryText     SummaryFormat = "text"
	SummaryMarkdown SummaryFormat = "markdown"
	SummaryHTML     SummaryFormat = "html"
)

// OrderSummary is a rendered copy of the order.
type OrderSummary struct {
	Format      SummaryFormat
	ContentType string
	Body        string
}

// NewOrderSessionService validates deps and returns an empty registry.
func NewOrderSessionService(deps OrderSessionServiceDeps) (*OrderSessionService, error) {
	if deps.Catalog == nil {
		return nil, errOrderSessionCatalogRequired
	}
	if deps.Discounts == nil {
		return nil, errOrderSessionDiscountsRequired
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultOrderSessionTTL
	}
	maxSessions := deps.MaxSessions
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	metrics, err := newOrderSessionMetrics(deps.Meter)
	if err != nil {
		return nil, err
	}

	return &OrderSessionService{
		catalog:   deps.Catalog,
		discounts: deps.Discounts,
		now: func() time.Time {
			return now().UTC()
		},
		logger:           logger.Named("order_sessions"),
		metrics:          metrics,
		ttl:              ttl,
		maxSessions:      maxSessions,
		discountsEnabled: !deps.DisableDiscounts,
		newID:            idGen,
		notePolicy:       bluemonday.StrictPolicy(),
		sessions:         make(map[string]*orderSession),
	}, nil
}

// Create opens a new empty order.
func (s *OrderSessionService) Create(ctx context.Context) (OrderView, error) {
	now := s.now()

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.metrics.sessionsClosed(ctx, s.sweepLocked(now))
	}
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		s.logger.Warn("order session limit reached", zap.Int("max_sessions", s.maxSessions))
		return OrderView{}, ErrSessionLimit
	}
	sess := &orderSession{
		id:        s.newID(),
		store:     order.NewStore(s.discounts),
		createdAt: now,
		updatedAt: now,
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.metrics.sessionOpened(ctx)
	s.logger.Info("order session created", zap.String("session_id", sess.id))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

// Get returns the current view and refreshes the session's expiry.
func (s *OrderSessionService) Get(ctx context.Context, sessionID string) (OrderView, error) {
	sess, err := s.acquire(ctx, sessionID)
	if err != nil {
		return OrderView{}, err
	}
	defer sess.mu.Unlock()
	sess.updatedAt = s.now()
	return s.viewLocked(sess), nil
}

// Delete discards a session.
func (s *OrderSessionService) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.metrics.sessionsClosed(ctx, 1)
	s.logger.Info("order session deleted", zap.String("session_id", sessionID))
	return nil
}

// SelectSize replaces the order's size.
func (s *OrderSessionService) SelectSize(ctx context.Context, sessionID, name string) (OrderView, error) {
	name, err := requireIdentifier("size", name)
	if err != nil {
		return OrderView{}, err
	}
	size, ok := s.catalog.Size(name)
	if !ok {
		return OrderView{}, fmt.Errorf("%w: size %q", ErrCatalogItemNotFound, name)
	}
	return s.mutate(ctx, sessionID, opSelectSize, func(store *order.Store) error {
		store.SelectSize(size)
		return nil
	})
}

// SelectCraft selects a craft, or clears it when it is already selected.
func (s *OrderSessionService) SelectCraft(ctx context.Context, sessionID, name string) (OrderView, error) {
	name, err := requireIdentifier("craft", name)
	if err != nil {
		return OrderView{}, err
	}
	craft, ok := s.catalog.Craft(name)
	if !ok {
		return OrderView{}, fmt.Errorf("%w: craft %q", ErrCatalogItemNotFound, name)
	}
	return s.mutate(ctx, sessionID, opSelectCraft, func(store *order.Store) error {
		store.SelectCraft(craft)
		return nil
	})
}

// ToggleAddon adds an addon, or removes it when already present.
func (s *OrderSessionService) ToggleAddon(ctx context.Context, sessionID, category, name string) (OrderView, error) {
	addon, err := s.resolveAddon(category, name)
	if err != nil {
		return OrderView{}, err
	}
	return s.mutate(ctx, sessionID, opToggleAddon, func(store *order.Store) error {
		store.ToggleAddon(addon)
		return nil
	})
}

// RemoveAddon drops an addon. Removing an addon that is not selected is a no-op.
func (s *OrderSessionService) RemoveAddon(ctx context.Context, sessionID, category, name string) (OrderView, error) {
	category, err := requireIdentifier("category", category)
	if err != nil {
		return OrderView{}, err
	}
	name, err = requireIdentifier("addon", name)
	if err != nil {
		return OrderView{}, err
	}
	return s.mutate(ctx, sessionID, opRemoveAddon, func(store *order.Store) error {
		store.RemoveAddon(category, name)
		return nil
	})
}

// SelectRush selects a rush tier, or clears it when already selected. While the
// workshop is busy only clearing is allowed.
func (s *OrderSessionService) SelectRush(ctx context.Context, sessionID, tierID string) (OrderView, error) {
	tierID, err := requireIdentifier("rush tier", tierID)
	if err != nil {
		return OrderView{}, err
	}
	tier, ok := s.catalog.RushTier(tierID)
	if !ok {
		return OrderView{}, fmt.Errorf("%w: rush tier %q", ErrCatalogItemNotFound, tierID)
	}
	busy := s.catalog.Status().Busy
	return s.mutate(ctx, sessionID, opSelectRush, func(store *order.Store) error {
		if busy {
			current := store.Snapshot().Rush
			if current == nil || current.ID != tier.ID {
				return ErrRushUnavailable
			}
		}
		store.SelectRush(tier)
		return nil
	})
}

// SelectPackaging replaces the packaging choice.
func (s *OrderSessionService) SelectPackaging(ctx context.Context, sessionID, title string) (OrderView, error) {
	title, err := requireIdentifier("packaging", title)
	if err != nil {
		return OrderView{}, err
	}
	packaging, ok := s.catalog.Packaging(title)
	if !ok {
		return OrderView{}, fmt.Errorf("%w: packaging %q", ErrCatalogItemNotFound, title)
	}
	return s.mutate(ctx, sessionID, opSelectPackaging, func(store *order.Store) error {
		store.SelectPackaging(packaging)
		return nil
	})
}

// AddDiscount redeems a code. Unknown, duplicate and conflicting codes are not
// errors: the outcome is reported through the view's notification.
func (s *OrderSessionService) AddDiscount(ctx context.Context, sessionID, code string) (OrderView, error) {
	if !s.discountsEnabled {
		return OrderView{}, ErrDiscountsDisabled
	}
	if len(code) > maxIdentifierLength {
		return OrderView{}, fmt.Errorf("%w: discount code too long", ErrInvalidInput)
	}
	return s.mutate(ctx, sessionID, opAddDiscount, func(store *order.Store) error {
		outcome := store.AddDiscount(code)
		s.metrics.discountAttempt(ctx, outcome)
		s.logger.Debug("discount redeemed",
			zap.String("session_id", sessionID),
			zap.String("code", observability.SanitizeText(code)),
			zap.String("outcome", string(outcome)),
		)
		return nil
	})
}

// RemoveDiscount drops an applied code and clears the notification.
func (s *OrderSessionService) RemoveDiscount(ctx context.Context, sessionID, code string) (OrderView, error) {
	code, err := requireIdentifier("discount code", code)
	if err != nil {
		return OrderView{}, err
	}
	return s.mutate(ctx, sessionID, opRemoveDiscount, func(store *order.Store) error {
		store.RemoveDiscount(code)
		return nil
	})
}

// SetConsultation switches consultation mode. A nil note leaves the stored note untouched.
func (s *OrderSessionService) SetConsultation(ctx context.Context, sessionID string, enabled bool, note *string) (OrderView, error) {
	var cleaned string
	if note != nil {
		cleaned = s.sanitizeNote(*note)
	}
	return s.mutate(ctx, sessionID, opSetConsultation, func(store *order.Store) error {
		store.SetConsultationMode(enabled)
		if note != nil {
			store.SetConsultationNote(cleaned)
		}
		return nil
	})
}

// SetModalOpen records whether the checkout summary is visible.
func (s *OrderSessionService) SetModalOpen(ctx context.Context, sessionID string, open bool) (OrderView, error) {
	return s.mutate(ctx, sessionID, opSetModal, func(store *order.Store) error {
		store.SetModalOpen(open)
		return nil
	})
}

// ClearNotification dismisses the pending notification.
func (s *OrderSessionService) ClearNotification(ctx context.Context, sessionID string) (OrderView, error) {
	return s.mutate(ctx, sessionID, opClearNotification, func(store *order.Store) error {
		store.ClearNotification()
		return nil
	})
}

// ClearOrder empties the order.
func (s *OrderSessionService) ClearOrder(ctx context.Context, sessionID string) (OrderView, error) {
	return s.mutate(ctx, sessionID, opClearOrder, func(store *order.Store) error {
		store.ClearOrder()
		return nil
	})
}

// Summary renders the order in the requested format. An empty format means text.
func (s *OrderSessionService) Summary(ctx context.Context, sessionID string, format SummaryFormat) (OrderSummary, error) {
	if format == "" {
		format = SummaryText
	}
	switch format {
	case SummaryText, SummaryMarkdown, SummaryHTML:
	default:
		return OrderSummary{}, fmt.Errorf("%w: unsupported summary format %q", ErrInvalidInput, format)
	}

	view, err := s.Get(ctx, sessionID)
	if err != nil {
		return OrderSummary{}, err
	}

	switch format {
	case SummaryMarkdown:
		return OrderSummary{Format: format, ContentType: "text/markdown; charset=utf-8", Body: summary.Markdown(view.State, view.Quote)}, nil
	case SummaryHTML:
		body, err := summary.HTML(view.State, view.Quote)
		if err != nil {
			return OrderSummary{}, err
		}
		return OrderSummary{Format: format, ContentType: "text/html; charset=utf-8", Body: body}, nil
	default:
		return OrderSummary{Format: format, ContentType: "text/plain; charset=utf-8", Body: summary.Text(view.State, view.Quote)}, nil
	}
}

// SweepExpired removes sessions idle for longer than the TTL and returns how many were removed.
func (s *OrderSessionService) SweepExpired(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	removed := s.sweepLocked(now.UTC())
	s.mu.Unlock()

	s.metrics.sessionsClosed(ctx, removed)
	if removed > 0 {
		s.logger.Info("expired order sessions swept", zap.Int("removed", removed))
	}
	return removed
}

// Len reports the number of live sessions.
func (s *OrderSessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RushAvailable reports whether rush tiers can currently be selected.
func (s *OrderSessionService) RushAvailable() bool {
	return !s.catalog.Status().Busy
}

func (s *OrderSessionService) sweepLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *OrderSessionService) expired(sess *orderSession, now time.Time) bool {
	if !sess.mu.TryLock() {
		// in use right now, so not idle
		return false
	}
	defer sess.mu.Unlock()
	return now.Sub(sess.updatedAt) > s.ttl
}

func (s *OrderSessionService) lookup(ctx context.Context, sessionID string) (*orderSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok && s.expired(sess, s.now()) {
		delete(s.sessions, sessionID)
		s.metrics.sessionsClosed(ctx, 1)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// acquire returns the session locked. The caller must unlock it.
func (s *OrderSessionService) acquire(ctx context.Context, sessionID string) (*orderSession, error) {
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.lockRegistered(sess)
}

// lockRegistered locks sess and confirms it was not deleted or swept while the
// caller waited for the lock.
func (s *OrderSessionService) lockRegistered(sess *orderSession) (*orderSession, error) {
	sess.mu.Lock()
	s.mu.Lock()
	current, ok := s.sessions[sess.id]
	s.mu.Unlock()
	if !ok || current != sess {
		sess.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *OrderSessionService) mutate(ctx context.Context, sessionID, operation string, fn func(*order.Store) error) (OrderView, error) {
	sess, err := s.acquire(ctx, sessionID)
	if err != nil {
		return OrderView{}, err
	}
	defer sess.mu.Unlock()

	if err := fn(sess.store); err != nil {
		return OrderView{}, err
	}
	sess.updatedAt = s.now()

	view := s.viewLocked(sess)
	s.metrics.mutation(ctx, operation, view.Quote.FinalPrice)
	s.logger.Debug("order mutated",
		zap.String("session_id", sess.id),
		zap.String("operation", operation),
		zap.String("final_price", view.Quote.FinalPrice.String()),
	)
	return view, nil
}

func (s *OrderSessionService) viewLocked(sess *orderSession) OrderView {
	state := sess.store.Snapshot()
	return OrderView{
		SessionID:     sess.id,
		State:         state,
		Quote:         sess.store.Quote(),
		WishPrompt:    state.Size != nil && state.Size.TriggerWish,
		RushAvailable: s.RushAvailable(),
		CreatedAt:     sess.createdAt,
		UpdatedAt:     sess.updatedAt,
	}
}

func (s *OrderSessionService) resolveAddon(category, name string) (domain.Addon, error) {
	category, err := requireIdentifier("category", category)
	if err != nil {
		return domain.Addon{}, err
	}
	name, err = requireIdentifier("addon", name)
	if err != nil {
		return domain.Addon{}, err
	}
	addon, ok := s.catalog.Addon(category, name)
	if !ok {
		return domain.Addon{}, fmt.Errorf("%w: addon %q in %q", ErrCatalogItemNotFound, name, category)
	}
	return addon, nil
}

// sanitizeNote strips markup and control characters. Newlines survive.
func (s *OrderSessionService) sanitizeNote(note string) string {
	cleaned := html.UnescapeString(s.notePolicy.Sanitize(note))
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.TrimSpace(cleaned)
}

func requireIdentifier(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: %s too long", ErrInvalidInput, field)
	}
	return trimmed, nil
}

