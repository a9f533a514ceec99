package services

import (
	"context"
	"time"

	"github.com/starrysand/api/internal/domain"
)

// OrderCatalog resolves request identifiers to priced catalog entries.
type OrderCatalog interface {
	Size(name string) (domain.Size, bool)
	Craft(name string) (domain.Craft, bool)
	Addon(category, name string) (domain.Addon, bool)
	RushTier(id string) (domain.RushTier, bool)
	Packaging(title string) (domain.Packaging, bool)
	Status() domain.SiteStatus
}

// OrderSessions exposes the order configurator to HTTP handlers.
type OrderSessions interface {
	Create(ctx context.Context) (OrderView, error)
	Get(ctx context.Context, sessionID string) (OrderView, error)
	Delete(ctx context.Context, sessionID string) error
	SelectSize(ctx context.Context, sessionID, name string) (OrderView, error)
	SelectCraft(ctx context.Context, sessionID, name string) (OrderView, error)
	ToggleAddon(ctx context.Context, sessionID, category, name string) (OrderView, error)
	RemoveAddon(ctx context.Context, sessionID, category, name string) (OrderView, error)
	SelectRush(ctx context.Context, sessionID, tierID string) (OrderView, error)
	SelectPackaging(ctx context.Context, sessionID, title string) (OrderView, error)
	AddDiscount(ctx context.Context, sessionID, code string) (OrderView, error)
	RemoveDiscount(ctx context.Context, sessionID, code string) (OrderView, error)
	SetConsultation(ctx context.Context, sessionID string, enabled bool, note *string) (OrderView, error)
	SetModalOpen(ctx context.Context, sessionID string, open bool) (OrderView, error)
	ClearNotification(ctx context.Context, sessionID string) (OrderView, error)
	ClearOrder(ctx context.Context, sessionID string) (OrderView, error)
	Summary(ctx context.Context, sessionID string, format SummaryFormat) (OrderSummary, error)
}

// SessionSweeper removes idle sessions.
type SessionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) int
}

var (
	_ OrderSessions  = (*OrderSessionService)(nil)
	_ SessionSweeper = (*OrderSessionService)(nil)
)
