package common

import "strings"

// BearerToken extracts the token from an Authorization header value. The
// scheme name is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	if len(header) < len(BearerScheme) || !strings.EqualFold(header[:len(BearerScheme)], BearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(BearerScheme):])
	return token, token != ""
}
