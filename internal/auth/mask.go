package auth

import "strings"

// MaskIdentity masks an identity for logging, e.g. "ad***@x.com".
// Identities never appear unmasked in log output.
func MaskIdentity(identity string) string {
	at := strings.IndexByte(identity, '@')
	if at < 0 {
		if len(identity) <= 4 {
			return "****"
		}
		return identity[:2] + strings.Repeat("*", len(identity)-4) + identity[len(identity)-2:]
	}
	local, domain := identity[:at], identity[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}
