package webhook

import (
	"net/url"
	"time"
)

/* Endpoint represents a registered delivery target
 * Uses value semantics as it represents data, not behavior
 */
type Endpoint struct {
	ID          string
	URL         string
	Secret      string
	Enabled     bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the endpoint fields that registration must enforce
func (e Endpoint) Validate() error {
	return ValidateURL(e.URL)
}

// ValidateURL checks that raw is a syntactically valid absolute http/https URL
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
