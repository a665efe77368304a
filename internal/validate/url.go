// Package validate checks endpoint URLs taken from configuration.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// URL validation errors
var (
	ErrEmpty            = errors.New("URL is empty")
	ErrTooLong          = errors.New("URL is too long")
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrMissingHost      = errors.New("URL has no host")
	ErrMissingTemplate  = errors.New("URL template has no placeholder")
)

// Placeholder is the verb a URL template uses for the substituted value.
const Placeholder = "%s"

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string // e.g., []string{"https", "http"}
	MaxLength      int      // Maximum URL length (0 = no limit)
}

// HTTPConstraints accepts plain or TLS HTTP endpoints.
var HTTPConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	MaxLength:      2048,
}

// WebSocketConstraints accepts plain or TLS websocket endpoints.
var WebSocketConstraints = URLConstraints{
	AllowedSchemes: []string{"wss", "ws"},
	MaxLength:      2048,
}

// URL validates a URL against the given constraints.
// Returns the trimmed URL string and an error if validation fails.
func URL(urlStr string, constraints URLConstraints) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", ErrEmpty
	}

	if constraints.MaxLength > 0 && len(urlStr) > constraints.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrTooLong, constraints.MaxLength)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if len(constraints.AllowedSchemes) > 0 && !slices.Contains(constraints.AllowedSchemes, parsedURL.Scheme) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsedURL.Scheme, constraints.AllowedSchemes)
	}

	if parsedURL.Hostname() == "" {
		return "", ErrMissingHost
	}

	return urlStr, nil
}

// URLTemplate validates a URL containing exactly one Placeholder, such as
// "https://api.example.com/users/%s". The placeholder is substituted before
// parsing so it does not trip the escape check.
func URLTemplate(tmpl string, constraints URLConstraints) (string, error) {
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return "", ErrEmpty
	}
	if strings.Count(tmpl, Placeholder) != 1 {
		return "", fmt.Errorf("%w: want exactly one %q", ErrMissingTemplate, Placeholder)
	}
	if _, err := URL(strings.Replace(tmpl, Placeholder, "x", 1), constraints); err != nil {
		return "", err
	}
	return tmpl, nil
}
