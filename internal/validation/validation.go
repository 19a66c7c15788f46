package validation

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// IsValidURL reports whether raw parses as an absolute URL with an http or
// https scheme. Scheme-relative and scheme-less input is rejected.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// SanitizeURL trims surrounding whitespace. Case, trailing slashes and
// query order are preserved as given.
func SanitizeURL(raw string) string {
	return strings.TrimSpace(raw)
}

// IsValidExpirationDate accepts a nil expiration (the field is optional);
// a set one must be strictly in the future at validation time.
func IsValidExpirationDate(t *time.Time) bool {
	if t == nil {
		return true
	}
	return t.After(time.Now())
}

// ParseExpirationDate parses an optional RFC 3339 expiration from a
// request. An absent or empty value is valid and means no expiration.
// A set value must parse and pass IsValidExpirationDate.
func ParseExpirationDate(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	if !IsValidExpirationDate(&t) {
		return nil, false
	}
	return &t, true
}

// ValidateCustomAlias reports whether alias is 3-20 characters of
// alphanumerics, hyphens and underscores.
func ValidateCustomAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}
