package summary

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/starrysand/api/internal/domain"
	"github.com/starrysand/api/internal/order"
)

var (
	markdownRenderer = goldmark.New()
	htmlPolicy       = bluemonday.UGCPolicy()
	markdownEscaper  = strings.NewReplacer(
		`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
		"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`, "~", `\~`,
	)
)

// Markdown renders the same content as Text as a markdown document.
func Markdown(state order.State, quote domain.Quote) string {
	if state.ConsultationMode {
		return consultationMarkdown(state)
	}

	var sb strings.Builder
	b := quote.Breakdown

	sb.WriteString("## Hi小狼，我想定制流沙麻将\n\n")
	if state.Size != nil {
		fmt.Fprintf(&sb, "- **尺寸**：%s (%s)\n", esc(state.Size.Name), esc(state.Size.PriceLabel))
	}
	if state.Craft != nil {
		fmt.Fprintf(&sb, "- **工艺**：%s (%s)\n", esc(state.Craft.Name), esc(state.Craft.PriceLabel))
	}
	if len(state.Addons) > 0 {
		sb.WriteString("- **装饰/其他**：\n")
		for _, addon := range state.Addons {
			fmt.Fprintf(&sb, "  - %s (%s)\n", esc(addon.Name), esc(addon.PriceLabel))
		}
	}
	if state.Rush != nil {
		fmt.Fprintf(&sb, "- **加急**：%s (%s)\n", esc(state.Rush.Name), esc(state.Rush.FeeLabel))
	}
	if state.Packaging != nil && state.Packaging.Price.IsPositive() {
		fmt.Fprintf(&sb, "- **包装**：%s (+%s)\n", esc(state.Packaging.Title), yuan(state.Packaging.Price))
	}
	if len(state.Discounts) > 0 {
		sb.WriteString("- **优惠券**：\n")
		for _, rule := range state.Discounts {
			fmt.Fprintf(&sb, "  - %s `%s`\n", esc(rule.Label), rule.Code)
		}
	}

	sb.WriteString("\n### 系统计价明细\n\n")
	fmt.Fprintf(&sb, "- 基础: %s\n", yuan(b.BaseTotal))
	if b.SmallSizeAddonDiscount {
		fmt.Fprintf(&sb, "- 装饰: %s %s\n", yuan(b.AddonTotal), smallSizeNote)
	} else {
		fmt.Fprintf(&sb, "- 装饰: %s\n", yuan(b.AddonTotal))
	}
	if b.DiscountAmount.IsPositive() {
		fmt.Fprintf(&sb, "- 折扣: -%s\n", yuan(b.DiscountAmount.Floor()))
	}
	fmt.Fprintf(&sb, "- 小计: %s\n", yuan(b.Subtotal))
	if b.RushFee.IsPositive() {
		fmt.Fprintf(&sb, "- 加急费: +%s\n", yuan(b.RushFee))
	}
	if b.PackagingFee.IsPositive() {
		fmt.Fprintf(&sb, "- 包装费: +%s\n", yuan(b.PackagingFee))
	}
	fmt.Fprintf(&sb, "\n**💰 最终报价：%s**\n\n", yuan(quote.FinalPrice))
	sb.WriteString("_" + esc(disclaimer) + "_\n")
	if quote.HasComplexItems {
		sb.WriteString("\n> " + esc(manualQuoteNote) + "\n")
	}
	return sb.String()
}

func consultationMarkdown(state order.State) string {
	var sb strings.Builder
	sb.WriteString("## " + esc(consultationIntro) + "\n")
	if state.Size != nil || len(state.Addons) > 0 {
		sb.WriteString("\n### 参考意向\n\n")
		if state.Size != nil {
			sb.WriteString("- 尺寸: " + esc(state.Size.Name) + "\n")
		}
		if state.Craft != nil {
			sb.WriteString("- 工艺: " + esc(state.Craft.Name) + "\n")
		}
		if len(state.Addons) > 0 {
			sb.WriteString("- 装饰: " + esc(strings.Join(addonNames(state.Addons), ", ")) + "\n")
		}
	}
	if note := strings.TrimSpace(state.ConsultationNote); note != "" {
		sb.WriteString("\n### 委托备注\n\n")
		for _, line := range strings.Split(note, "\n") {
			sb.WriteString("> " + esc(line) + "\n")
		}
	}
	return sb.String()
}

// HTML renders Markdown to sanitized HTML.
func HTML(state order.State, quote domain.Quote) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(Markdown(state, quote)), &buf); err != nil {
		return "", fmt.Errorf("summary: render markdown: %w", err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

func esc(s string) string {
	return markdownEscaper.Replace(s)
}
