package extract

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"
)

const maxDescriptionRunes = 2000

var currencySigns = []struct {
	sign string
	code string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"¥", "JPY"},
}

// currencyWords only match as whole words.
var currencyWords = map[string]string{
	"zł": "PLN",
	"kr": "SEK",
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// parsePrice reads a price written in either decimal convention
// ("1.299,99" or "1,299.99"), with or without a currency symbol.
func parsePrice(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	num := strings.Trim(b.String(), ".,")
	if num == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		num = singleSeparator(num, ",")
	case lastDot >= 0:
		num = singleSeparator(num, ".")
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// singleSeparator handles a number that uses only one kind of separator.
// Repeated separators or exactly three trailing digits mean thousands.
func singleSeparator(num, sep string) string {
	if strings.Count(num, sep) > 1 {
		return strings.ReplaceAll(num, sep, "")
	}
	idx := strings.Index(num, sep)
	if len(num)-idx-1 == 3 {
		return strings.ReplaceAll(num, sep, "")
	}
	return strings.Replace(num, sep, ".", 1)
}

// normalizeCurrency returns the ISO 4217 code for a code or symbol, or "".
func normalizeCurrency(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, c := range currencySigns {
		if s == c.sign {
			return c.code
		}
	}
	if code, ok := currencyWords[strings.ToLower(s)]; ok {
		return code
	}
	unit, err := currency.ParseISO(strings.ToUpper(s))
	if err != nil {
		return ""
	}
	return unit.String()
}

// currencyFromText finds a currency symbol or code inside a price string.
// The sign that appears first wins.
func currencyFromText(s string) string {
	code, at := "", -1
	for _, c := range currencySigns {
		if i := strings.Index(s, c.sign); i >= 0 && (at < 0 || i < at) {
			code, at = c.code, i
		}
	}
	if code != "" {
		return code
	}

	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if code, ok := currencyWords[strings.ToLower(field)]; ok {
			return code
		}
		if len(field) == 3 {
			if code := normalizeCurrency(field); code != "" {
				return code
			}
		}
	}
	return ""
}

// readableText returns the main text of an HTML page.
func readableText(body string, pageURL *url.URL) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(body), pageURL)
	if err != nil {
		return ""
	}

	return truncateRunes(cleanText(article.TextContent), maxDescriptionRunes)
}
