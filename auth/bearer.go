package auth

import (
	"net/http"
	"strings"
)

// ExtractBearerToken returns the token from an Authorization header value
// of the form "Bearer <token>". The scheme is case-insensitive; the value
// must be exactly two whitespace-separated parts.
func ExtractBearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// BearerFromRequest extracts the bearer token from r's Authorization header.
func BearerFromRequest(r *http.Request) (string, bool) {
	return ExtractBearerToken(r.Header.Get("Authorization"))
}
