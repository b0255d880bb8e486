package athm

import "strings"

// MaskToken hides all but the first four characters of a credential so it
// can appear in logs.
func MaskToken(token string) string {
	const visible = 4
	if len(token) <= visible {
		return "***"
	}
	return token[:visible] + strings.Repeat("*", len(token)-visible)
}
