package console

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Mindburn-Labs/tradegate/pkg/form"
)

var enUS = message.NewPrinter(language.AmericanEnglish)

// USD formats v as whole US dollars with grouping, e.g. "$12,500" or "-$40".
func USD(v float64) string {
	r := math.Round(v)
	sign := ""
	if r < 0 {
		sign = "-"
		r = -r
	}
	return sign + "$" + enUS.Sprintf("%v", number.Decimal(r, number.MaxFractionDigits(0)))
}

// declaredUSD formats the form's declared value for the result summary. Text
// that is not a valid amount shows as $0.
func declaredUSD(s form.State) string {
	n, ok := s.DeclaredAmount()
	if !ok {
		return USD(0)
	}
	return USD(float64(n))
}
