package textutil

import "strings"

// SanitizeToken reduces a story title to a lowercase filesystem-safe
// token for episode file names. ASCII letters are lowercased; digits,
// hyphens, and underscores pass through; every other rune (including
// non-ASCII) collapses to a single underscore. Inputs with nothing
// usable left yield "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	token = strings.Trim(token, "_-")
	if token == "" {
		return "unknown"
	}
	return token
}
