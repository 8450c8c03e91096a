package formatting

import (
	"strings"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Separator returns a line separator of given width
func Separator(width int) string {
	return strings.Repeat("=", width)
}

// Number renders v with thousands separators and two decimals, e.g. 1,234.50.
func Number(v float64) string {
	return printer.Sprintf("%.2f", Round2(v))
}

// Money renders v followed by the currency sign, e.g. 1,234.50 ₽.
func Money(v float64, c types.Currency) string {
	return Number(v) + " " + c.Sign()
}

// SignedPercent renders +2.35% / -0.10%.
func SignedPercent(v float64) string {
	return printer.Sprintf("%+.2f%%", v)
}

// Round2 rounds half away from zero to cents.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// PadRight pads s with spaces to width runes.
func PadRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
