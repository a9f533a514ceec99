// Package summary renders an order as the text customers paste into a chat with the workshop.
package summary

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/order"
)

const (
	intro              = "Hi小狼，我想定制流沙麻将：\n"
	separator          = "----------------\n"
	sizePrefix         = "🖼️ 尺寸："
	craftPrefix        = "🛠️ 工艺："
	addonsHeading      = "✨ 装饰/其他：\n"
	rushPrefix         = "🚀 加急："
	packagingPrefix    = "🎁 包装："
	couponHeading      = "🎟️ 优惠券：\n"
	systemTitle        = "[系统计价明细]\n"
	finalPrefix        = "\n💰 最终报价："
	disclaimer         = "(此为系统预估，最终价格以沟通为准)"
	smallSizeNote      = "(小尺寸半价)"
	manualQuoteNote    = "(部分项目需人工核价，小狼会单独报价)"
	consultationIntro  = "[特殊委托] 客户申请深度定制/推荐服务，请接入人工咨询。"
	consultationRefs   = "\n\n[参考意向]："
	consultationRemark = "\n\n[委托备注]：\n"
)

// Text builds the clipboard text for the order. Consultation mode replaces the priced
// summary with a request for a human consultation.
func Text(state order.State, quote domain.Quote) string {
	if state.ConsultationMode {
		return consultationText(state)
	}

	var sb strings.Builder
	b := quote.Breakdown

	sb.WriteString(intro)
	sb.WriteString(separator)
	if state.Size != nil {
		sb.WriteString(sizePrefix + state.Size.Name + " (" + state.Size.PriceLabel + ")\n")
	}
	if state.Craft != nil {
		sb.WriteString(craftPrefix + state.Craft.Name + " (" + state.Craft.PriceLabel + ")\n")
	}
	if len(state.Addons) > 0 {
		sb.WriteString(addonsHeading)
		for _, addon := range state.Addons {
			sb.WriteString("  - " + addon.Name + " (" + addon.PriceLabel + ")\n")
		}
	}
	if state.Rush != nil {
		sb.WriteString(rushPrefix + state.Rush.Name + " (" + state.Rush.FeeLabel + ")\n")
	}
	if state.Packaging != nil && state.Packaging.Price.IsPositive() {
		sb.WriteString(packagingPrefix + state.Packaging.Title + " (+" + yuan(state.Packaging.Price) + ")\n")
	}
	if len(state.Discounts) > 0 {
		sb.WriteString(couponHeading)
		for _, rule := range state.Discounts {
			sb.WriteString("  - " + rule.Label + " [" + rule.Code + "]\n")
		}
	}
	sb.WriteString(separator)

	sb.WriteString(systemTitle)
	sb.WriteString("1. 基础: " + yuan(b.BaseTotal) + "\n")
	decor := "2. 装饰: " + yuan(b.AddonTotal) + " "
	if b.SmallSizeAddonDiscount {
		decor += smallSizeNote
	}
	sb.WriteString(decor + "\n")
	if b.DiscountAmount.IsPositive() {
		sb.WriteString("3. 折扣: -" + yuan(b.DiscountAmount.Floor()) + "\n")
	}
	sb.WriteString("4. 小计: " + yuan(b.Subtotal) + "\n")
	if b.RushFee.IsPositive() {
		sb.WriteString("5. 加急费: +" + yuan(b.RushFee) + "\n")
	}
	if b.PackagingFee.IsPositive() {
		sb.WriteString("6. 包装费: +" + yuan(b.PackagingFee) + "\n")
	}
	sb.WriteString(finalPrefix + yuan(quote.FinalPrice) + "\n")
	sb.WriteString(disclaimer)
	if quote.HasComplexItems {
		sb.WriteString("\n" + manualQuoteNote)
	}
	return sb.String()
}

func consultationText(state order.State) string {
	var sb strings.Builder
	sb.WriteString(consultationIntro)
	if state.Size != nil || len(state.Addons) > 0 {
		sb.WriteString(consultationRefs)
		if state.Size != nil {
			sb.WriteString("\n尺寸: " + state.Size.Name)
		}
		if state.Craft != nil {
			sb.WriteString("\n工艺: " + state.Craft.Name)
		}
		if len(state.Addons) > 0 {
			sb.WriteString("\n装饰: " + strings.Join(addonNames(state.Addons), ", "))
		}
	}
	if note := strings.TrimSpace(state.ConsultationNote); note != "" {
		sb.WriteString(consultationRemark + note)
	}
	return sb.String()
}

func addonNames(addons []domain.Addon) []string {
	names := make([]string, 0, len(addons))
	for _, addon := range addons {
		names = append(names, addon.Name)
	}
	return names
}

func yuan(v decimal.Decimal) string {
	return v.String() + "r"
}
