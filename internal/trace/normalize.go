package trace

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize trims raw and prefixes https:// when it does not start with
// http:// or https://.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if hasHTTPScheme(s) {
		return s
	}
	return "https://" + s
}

func hasHTTPScheme(s string) bool {
	return hasPrefixFold(s, "http://") || hasPrefixFold(s, "https://")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func normalizeStart(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}
	s := Normalize(raw)
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidInput, raw)
	}
	return s, nil
}

// resolveLocation resolves loc against the URL of the hop that returned it.
func resolveLocation(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadLocation, err)
	}
	ref, err := url.Parse(strings.TrimSpace(loc))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadLocation, err)
	}
	next := b.ResolveReference(ref)
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, next.Scheme)
	}
	return next.String(), nil
}
