package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/services"
)

type sizePayload struct {
	Name        string          `json:"name"`
	Dimensions  string          `json:"dimensions,omitempty"`
	PriceLabel  string          `json:"priceLabel"`
	Price       decimal.Decimal `json:"price"`
	IsSmallSize bool            `json:"isSmallSize"`
	TriggerWish bool            `json:"triggerWish"`
	Description string          `json:"description,omitempty"`
}

type craftPayload struct {
	Name        string          `json:"name"`
	PriceLabel  string          `json:"priceLabel"`
	Price       decimal.Decimal `json:"price"`
	Multiplier  int             `json:"multiplier"`
	Description string          `json:"description,omitempty"`
}

type addonPayload struct {
	Category    string          `json:"category"`
	Name        string          `json:"name"`
	PriceLabel  string          `json:"priceLabel"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

type rushPayload struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	FeeLabel   string          `json:"feeLabel"`
	Multiplier decimal.Decimal `json:"multiplier"`
	LeadTime   string          `json:"leadTime,omitempty"`
}

type packagingPayload struct {
	Title       string          `json:"title"`
	PriceLabel  string          `json:"priceLabel"`
	Price       decimal.Decimal `json:"price"`
	IsUpgrade   bool            `json:"isUpgrade"`
	Description string          `json:"description,omitempty"`
}

type discountPayload struct {
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	Threshold decimal.Decimal `json:"threshold"`
	Exclusive bool            `json:"exclusive"`
	Label     string          `json:"label"`
	Tag       string          `json:"tag,omitempty"`
}

type notificationPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type orderStatePayload struct {
	Size             *sizePayload         `json:"size"`
	Craft            *craftPayload        `json:"craft"`
	Addons           []addonPayload       `json:"addons"`
	Rush             *rushPayload         `json:"rush"`
	Packaging        *packagingPayload    `json:"packaging"`
	Discounts        []discountPayload    `json:"discounts"`
	ConsultationMode bool                 `json:"consultationMode"`
	ConsultationNote string               `json:"consultationNote,omitempty"`
	ModalOpen        bool                 `json:"modalOpen"`
	Notification     *notificationPayload `json:"notification"`
}

type discountLinePayload struct {
	Code    string          `json:"code"`
	Label   string          `json:"label"`
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Applied bool            `json:"applied"`
}

type shortfallPayload struct {
	Code      string          `json:"code"`
	Label     string          `json:"label"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Message   string          `json:"message"`
}

type breakdownPayload struct {
	BaseTotal               decimal.Decimal       `json:"baseTotal"`
	CraftMultiplier         int                   `json:"craftMultiplier"`
	RawAddonTotal           decimal.Decimal       `json:"rawAddonTotal"`
	AddonDiscountMultiplier decimal.Decimal       `json:"addonDiscountMultiplier"`
	AddonTotal              decimal.Decimal       `json:"addonTotal"`
	SmallSizeAddonDiscount  bool                  `json:"smallSizeAddonDiscount"`
	PreDiscountSubtotal     decimal.Decimal       `json:"preDiscountSubtotal"`
	Subtotal                decimal.Decimal       `json:"subtotal"`
	DiscountAmount          decimal.Decimal       `json:"discountAmount"`
	Discounts               []discountLinePayload `json:"discounts"`
	ThresholdShortfalls     []shortfallPayload    `json:"thresholdShortfalls"`
	RushFee                 decimal.Decimal       `json:"rushFee"`
	PackagingFee            decimal.Decimal       `json:"packagingFee"`
}

type quotePayload struct {
	Breakdown       breakdownPayload `json:"breakdown"`
	FinalPrice      decimal.Decimal  `json:"finalPrice"`
	HasComplexItems bool             `json:"hasComplexItems"`
}

type orderViewPayload struct {
	SessionID     string            `json:"sessionId"`
	State         orderStatePayload `json:"state"`
	Quote         quotePayload      `json:"quote"`
	WishPrompt    bool              `json:"wishPrompt"`
	RushAvailable bool              `json:"rushAvailable"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

func newSizePayload(s domain.Size) sizePayload {
	return sizePayload{
		Name:        s.Name,
		Dimensions:  s.Dimensions,
		PriceLabel:  s.PriceLabel,
		Price:       s.Price,
		IsSmallSize: s.IsSmallSize,
		TriggerWish: s.TriggerWish,
		Description: s.Description,
	}
}

func newCraftPayload(c domain.Craft) craftPayload {
	return craftPayload{
		Name:        c.Name,
		PriceLabel:  c.PriceLabel,
		Price:       c.Price,
		Multiplier:  c.EffectiveMultiplier(),
		Description: c.Description,
	}
}

func newAddonPayload(a domain.Addon) addonPayload {
	return addonPayload{
		Category:    a.Category,
		Name:        a.Name,
		PriceLabel:  a.PriceLabel,
		Price:       a.Price,
		Description: a.Description,
	}
}

func newRushPayload(r domain.RushTier) rushPayload {
	return rushPayload{ID: r.ID, Name: r.Name, FeeLabel: r.FeeLabel, Multiplier: r.Multiplier, LeadTime: r.LeadTime}
}

func newPackagingPayload(p domain.Packaging) packagingPayload {
	return packagingPayload{
		Title:       p.Title,
		PriceLabel:  p.PriceLabel,
		Price:       p.Price,
		IsUpgrade:   p.IsUpgrade,
		Description: p.Description,
	}
}

func newOrderViewPayload(view services.OrderView) orderViewPayload {
	state := view.State
	sp := orderStatePayload{
		Addons:           make([]addonPayload, 0, len(state.Addons)),
		Discounts:        make([]discountPayload, 0, len(state.Discounts)),
		ConsultationMode: state.ConsultationMode,
		ConsultationNote: state.ConsultationNote,
		ModalOpen:        state.ModalOpen,
	}
	if state.Size != nil {
		p := newSizePayload(*state.Size)
		sp.Size = &p
	}
	if state.Craft != nil {
		p := newCraftPayload(*state.Craft)
		sp.Craft = &p
	}
	for _, addon := range state.Addons {
		sp.Addons = append(sp.Addons, newAddonPayload(addon))
	}
	if state.Rush != nil {
		p := newRushPayload(*state.Rush)
		sp.Rush = &p
	}
	if state.Packaging != nil {
		p := newPackagingPayload(*state.Packaging)
		sp.Packaging = &p
	}
	for _, rule := range state.Discounts {
		sp.Discounts = append(sp.Discounts, discountPayload{
			Code:      rule.Code,
			Type:      string(rule.Type),
			Value:     rule.Value,
			Threshold: rule.Threshold,
			Exclusive: rule.Exclusive,
			Label:     rule.Label,
			Tag:       rule.Tag,
		})
	}
	if state.Notification != nil {
		sp.Notification = &notificationPayload{Type: string(state.Notification.Type), Message: state.Notification.Message}
	}

	return orderViewPayload{
		SessionID:     view.SessionID,
		State:         sp,
		Quote:         newQuotePayload(view.Quote),
		WishPrompt:    view.WishPrompt,
		RushAvailable: view.RushAvailable,
		CreatedAt:     formatTime(view.CreatedAt),
		UpdatedAt:     formatTime(view.UpdatedAt),
	}
}

func newQuotePayload(q domain.Quote) quotePayload {
	b := q.Breakdown
	bp := breakdownPayload{
		BaseTotal:               b.BaseTotal,
		CraftMultiplier:         b.CraftMultiplier,
		RawAddonTotal:           b.RawAddonTotal,
		AddonDiscountMultiplier: b.AddonDiscountMultiplier,
		AddonTotal:              b.AddonTotal,
		SmallSizeAddonDiscount:  b.SmallSizeAddonDiscount,
		PreDiscountSubtotal:     b.PreDiscountSubtotal,
		Subtotal:                b.Subtotal,
		DiscountAmount:          b.DiscountAmount,
		Discounts:               make([]discountLinePayload, 0, len(b.Discounts)),
		ThresholdShortfalls:     make([]shortfallPayload, 0, len(b.ThresholdShortfalls)),
		RushFee:                 b.RushFee,
		PackagingFee:            b.PackagingFee,
	}
	for _, line := range b.Discounts {
		bp.Discounts = append(bp.Discounts, discountLinePayload{
			Code:    line.Code,
			Label:   line.Label,
			Type:    string(line.Type),
			Amount:  line.Amount,
			Applied: line.Applied,
		})
	}
	for _, s := range b.ThresholdShortfalls {
		bp.ThresholdShortfalls = append(bp.ThresholdShortfalls, shortfallPayload{
			Code:      s.Code,
			Label:     s.Label,
			Shortfall: s.Shortfall,
			Message:   s.Message,
		})
	}
	return quotePayload{Breakdown: bp, FinalPrice: q.FinalPrice, HasComplexItems: q.HasComplexItems}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
