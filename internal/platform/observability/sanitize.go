package observability

import (
	"strings"
	"unicode"
)

const (
	maxRouteLen  = 180
	maxMethodLen = 10
)

// SanitizeRoute strips control characters from a request path before it is
// logged, so a crafted URL cannot inject log lines.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, maxRouteLen)
}

// SanitizeMethod strips control characters from an HTTP method.
func SanitizeMethod(method string) string {
	return stripControl(method, maxMethodLen)
}

func stripControl(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}
