package http

import (
	"net/url"
	"strings"
)

// parseForm decodes an application/x-www-form-urlencoded body into form.
// Pairs are split on '&' and then on the first '='; a repeated key keeps
// its last value. Invalid escapes are kept literally.
func parseForm(body string, form map[string]string) {
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		form[unescape(key)] = unescape(value)
	}
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}
