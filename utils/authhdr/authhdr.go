package authhdr

import (
	"encoding/base64"
	"strings"
)

const basicPrefix = "basic "

// DecodeBasicAuth parses an Authorization header value in the Basic scheme
// and returns the username and password it carries.
func DecodeBasicAuth(hdr string) (string, string, bool) {
	if len(hdr) <= len(basicPrefix) {
		return "", "", false
	}
	if !strings.EqualFold(hdr[:len(basicPrefix)], basicPrefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(hdr[len(basicPrefix):])
	if err != nil {
		return "", "", false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}

	return username, password, true
}
