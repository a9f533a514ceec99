// Package order holds one customer's in-progress order and its discount stacking rules.
package order

import (
	"fmt"
	"unicode/utf8"

	"github.com/starrysand/api/internal/catalog"
	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/pricing"
)

// MaxConsultationNoteRunes bounds the free-form consultation note.
const MaxConsultationNoteRunes = 500

// Storefront copy for discount notifications.
const (
	msgDuplicateCode  = "这个优惠码已经使用啦"
	msgUnknownCode    = "无效的优惠码"
	msgExclusiveSwap  = "大额优惠券不可叠加哦~ 已为您替换为: %s"
	msgStackConflict  = "当前已使用互斥优惠，无法叠加小红包"
	msgDiscountAppend = "成功添加优惠: %s"
)

// DiscountLookup resolves a typed code to a rule.
type DiscountLookup interface {
	Lookup(code string) (domain.DiscountRule, bool)
}

// DiscountOutcome classifies what AddDiscount did.
type DiscountOutcome string

const (
	DiscountIgnored   DiscountOutcome = "ignored"
	DiscountApplied   DiscountOutcome = "applied"
	DiscountReplaced  DiscountOutcome = "replaced"
	DiscountDuplicate DiscountOutcome = "duplicate"
	DiscountUnknown   DiscountOutcome = "unknown"
	DiscountConflict  DiscountOutcome = "conflict"
)

// State is a copy of the store's selections and flags.
type State struct {
	Size             *domain.Size
	Craft            *domain.Craft
	Addons           []domain.Addon
	Rush             *domain.RushTier
	Packaging        *domain.Packaging
	Discounts        []domain.DiscountRule
	ConsultationMode bool
	ConsultationNote string
	ModalOpen        bool
	Notification     *domain.Notification
}

// Store is the mutation surface for one order. Every operation is total: invalid input
// becomes a no-op or a notification. A Store is not safe for concurrent use.
type Store struct {
	discounts DiscountLookup

	size      *domain.Size
	craft     *domain.Craft
	rush      *domain.RushTier
	packaging *domain.Packaging

	addons     map[domain.AddonKey]domain.Addon
	addonOrder []domain.AddonKey

	applied      map[string]domain.DiscountRule
	appliedOrder []string

	consultation bool
	note         string
	modalOpen    bool
	notification *domain.Notification
}

// NewStore returns an empty order resolving codes through discounts.
func NewStore(discounts DiscountLookup) *Store {
	return &Store{
		discounts: discounts,
		addons:    make(map[domain.AddonKey]domain.Addon),
		applied:   make(map[string]domain.DiscountRule),
	}
}

// SelectSize replaces the size and leaves consultation mode.
func (s *Store) SelectSize(size domain.Size) {
	s.size = &size
	s.consultation = false
}

// SelectCraft selects craft, or clears it when it is already selected.
func (s *Store) SelectCraft(craft domain.Craft) {
	if s.craft != nil && s.craft.Name == craft.Name {
		s.craft = nil
		return
	}
	s.craft = &craft
}

// ToggleAddon adds the addon or removes it when its (category, name) is present.
// Adding leaves consultation mode.
func (s *Store) ToggleAddon(addon domain.Addon) {
	key := addon.Key()
	if _, ok := s.addons[key]; ok {
		s.RemoveAddon(key.Category, key.Name)
		return
	}
	s.addons[key] = addon
	s.addonOrder = append(s.addonOrder, key)
	s.consultation = false
}

// RemoveAddon drops the addon if present.
func (s *Store) RemoveAddon(category, name string) {
	key := domain.AddonKey{Category: category, Name: name}
	if _, ok := s.addons[key]; !ok {
		return
	}
	delete(s.addons, key)
	for i, k := range s.addonOrder {
		if k == key {
			s.addonOrder = append(s.addonOrder[:i], s.addonOrder[i+1:]...)
			break
		}
	}
}

// SelectRush selects tier, or clears it when it is already selected.
func (s *Store) SelectRush(tier domain.RushTier) {
	if s.rush != nil && sameRush(*s.rush, tier) {
		s.rush = nil
		return
	}
	s.rush = &tier
}

func sameRush(a, b domain.RushTier) bool {
	if a.ID != "" || b.ID != "" {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}

// SelectPackaging replaces the packaging. There is no way to deselect it.
func (s *Store) SelectPackaging(p domain.Packaging) {
	s.packaging = &p
}

// AddDiscount redeems a code. Exclusive rules replace the whole applied set; other
// rules stack unless an exclusive rule is active. The outcome is reported both as
// the return value and as the pending notification.
func (s *Store) AddDiscount(code string) DiscountOutcome {
	normalized := catalog.NormalizeCode(code)
	if normalized == "" {
		return DiscountIgnored
	}
	if s.discounts == nil {
		s.notify(domain.NotificationError, msgUnknownCode)
		return DiscountUnknown
	}
	rule, ok := s.discounts.Lookup(normalized)
	if !ok {
		s.notify(domain.NotificationError, msgUnknownCode)
		return DiscountUnknown
	}
	if _, dup := s.applied[rule.Code]; dup {
		s.notify(domain.NotificationInfo, msgDuplicateCode)
		return DiscountDuplicate
	}

	if rule.Exclusive {
		s.applied = map[string]domain.DiscountRule{rule.Code: rule}
		s.appliedOrder = []string{rule.Code}
		s.notify(domain.NotificationSuccess, fmt.Sprintf(msgExclusiveSwap, rule.Label))
		return DiscountReplaced
	}
	if s.hasExclusive() {
		s.notify(domain.NotificationError, msgStackConflict)
		return DiscountConflict
	}
	s.applied[rule.Code] = rule
	s.appliedOrder = append(s.appliedOrder, rule.Code)
	s.notify(domain.NotificationSuccess, fmt.Sprintf(msgDiscountAppend, rule.Label))
	return DiscountApplied
}

// RemoveDiscount drops code from the applied set and clears the notification.
func (s *Store) RemoveDiscount(code string) {
	normalized := catalog.NormalizeCode(code)
	if _, ok := s.applied[normalized]; ok {
		delete(s.applied, normalized)
		for i, c := range s.appliedOrder {
			if c == normalized {
				s.appliedOrder = append(s.appliedOrder[:i], s.appliedOrder[i+1:]...)
				break
			}
		}
	}
	s.notification = nil
}

func (s *Store) hasExclusive() bool {
	for _, rule := range s.applied {
		if rule.Exclusive {
			return true
		}
	}
	return false
}

// SetConsultationMode sets the flag without touching selections.
func (s *Store) SetConsultationMode(enabled bool) {
	s.consultation = enabled
}

// SetConsultationNote stores the customer's free-form request, truncated to
// MaxConsultationNoteRunes.
func (s *Store) SetConsultationNote(note string) {
	if utf8.RuneCountInString(note) > MaxConsultationNoteRunes {
		note = string([]rune(note)[:MaxConsultationNoteRunes])
	}
	s.note = note
}

// SetModalOpen records checkout visibility for the storefront.
func (s *Store) SetModalOpen(open bool) {
	s.modalOpen = open
}

// ClearNotification drops the pending notification.
func (s *Store) ClearNotification() {
	s.notification = nil
}

// ClearOrder resets every selection, discount, the consultation state and the
// notification. Checkout visibility is left alone so the emptied order stays on screen.
func (s *Store) ClearOrder() {
	s.size = nil
	s.craft = nil
	s.rush = nil
	s.packaging = nil
	s.addons = make(map[domain.AddonKey]domain.Addon)
	s.addonOrder = nil
	s.applied = make(map[string]domain.DiscountRule)
	s.appliedOrder = nil
	s.consultation = false
	s.note = ""
	s.notification = nil
}

func (s *Store) notify(kind domain.NotificationType, message string) {
	s.notification = &domain.Notification{Type: kind, Message: message}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	state := State{
		Addons:           s.addonList(),
		Discounts:        s.discountList(),
		ConsultationMode: s.consultation,
		ConsultationNote: s.note,
		ModalOpen:        s.modalOpen,
	}
	if s.size != nil {
		v := *s.size
		state.Size = &v
	}
	if s.craft != nil {
		v := *s.craft
		state.Craft = &v
	}
	if s.rush != nil {
		v := *s.rush
		state.Rush = &v
	}
	if s.packaging != nil {
		v := *s.packaging
		state.Packaging = &v
	}
	if s.notification != nil {
		v := *s.notification
		state.Notification = &v
	}
	return state
}

// Quote prices the current selections. It is recomputed on every call.
func (s *Store) Quote() domain.Quote {
	return pricing.Calculate(pricing.Selection{
		Size:      s.size,
		Craft:     s.craft,
		Addons:    s.addonList(),
		Rush:      s.rush,
		Packaging: s.packaging,
		Discounts: s.discountList(),
	})
}

func (s *Store) addonList() []domain.Addon {
	if len(s.addonOrder) == 0 {
		return nil
	}
	out := make([]domain.Addon, 0, len(s.addonOrder))
	for _, key := range s.addonOrder {
		out = append(out, s.addons[key])
	}
	return out
}

func (s *Store) discountList() []domain.DiscountRule {
	if len(s.appliedOrder) == 0 {
		return nil
	}
	out := make([]domain.DiscountRule, 0, len(s.appliedOrder))
	for _, code := range s.appliedOrder {
		out = append(out, s.applied[code])
	}
	return out
}
