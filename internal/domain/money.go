package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// display locale used by the storefront; matches the SPA's en-GB formatting.
var moneyPrinter = message.NewPrinter(language.BritishEnglish)

// symbols pins the narrow symbols for the currencies the catalogue sells in.
// Other valid ISO codes render with the code as prefix.
var symbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
	"JPY": "¥",
}

// FormatMinor converts an integer minor-currency-unit amount (e.g. cents)
// into a localized display string such as "£19.99". Amounts always carry two
// fraction digits, mirroring the storefront's formatMoney behaviour. Unknown
// currency codes fall back to a plain "CODE units.cc" rendering.
func FormatMinor(amountMinor int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))

	if _, err := currency.ParseISO(code); err != nil {
		if code == "" {
			return minorToDecimal(amountMinor)
		}
		return fmt.Sprintf("%s %s", code, minorToDecimal(amountMinor))
	}

	negative := amountMinor < 0
	if negative {
		amountMinor = -amountMinor
	}
	value := float64(amountMinor) / 100
	formatted := moneyPrinter.Sprintf("%v", number.Decimal(value,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))

	sign := ""
	if negative {
		sign = "-"
	}
	if symbol, ok := symbols[code]; ok {
		return sign + symbol + formatted
	}
	return fmt.Sprintf("%s%s %s", sign, code, formatted)
}

func minorToDecimal(amountMinor int64) string {
	sign := ""
	if amountMinor < 0 {
		sign = "-"
		amountMinor = -amountMinor
	}
	return fmt.Sprintf("%s%d.%02d", sign, amountMinor/100, amountMinor%100)
}
