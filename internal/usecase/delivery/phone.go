package delivery

import (
	"regexp"
	"strings"
	"unicode"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// NormalizePhone приводит номер к E.164: убирает пробелы и пунктуацию,
// национальный префикс 0 заменяет кодом страны, 00 заменяет на +.
func NormalizePhone(raw, defaultCountryCode string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	international := strings.HasPrefix(raw, "+")

	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}

	switch {
	case international:
		return "+" + d
	case strings.HasPrefix(d, "00"):
		return "+" + d[2:]
	case strings.HasPrefix(d, "0"):
		cc := strings.TrimLeft(strings.TrimSpace(defaultCountryCode), "+")
		return "+" + cc + d[1:]
	default:
		return "+" + d
	}
}

// ValidatePhone проверяет номер в формате E.164.
func ValidatePhone(phone string) bool {
	return e164Pattern.MatchString(phone)
}
