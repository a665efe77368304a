// Package scratch connects to the Scratch cloud variable service.
// It logs in with a Scratch account, opens the cloud websocket for one
// project and decodes its frames into ingest notifications.
package scratch

import (
	"errors"
	"time"
)

// Default endpoints and timeouts.
const (
	DefaultBaseURL          = "https://scratch.mit.edu"
	DefaultCloudURL         = "wss://clouddata.scratch.mit.edu"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultUserAgent        = "cloudlog/0.1"
)

// Configuration errors.
var (
	ErrMissingUsername  = errors.New("scratch username is required")
	ErrMissingPassword  = errors.New("scratch password is required")
	ErrMissingProjectID = errors.New("scratch project id is required")
	ErrMissingBaseURL   = errors.New("scratch base URL is required")
	ErrMissingCloudURL  = errors.New("scratch cloud URL is required")
)

// Config holds account and endpoint settings for the cloud connection.
type Config struct {
	Username  string
	Password  string
	ProjectID string

	// BaseURL is the site used for login and as the websocket Origin.
	BaseURL string

	// CloudURL is the cloud data websocket endpoint.
	CloudURL string

	HandshakeTimeout time.Duration
	UserAgent        string
}

// DefaultConfig returns a Config for the public Scratch endpoints.
// Credentials and project id must be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		CloudURL:         DefaultCloudURL,
		HandshakeTimeout: DefaultHandshakeTimeout,
		UserAgent:        DefaultUserAgent,
	}
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.Username == "" {
		return ErrMissingUsername
	}
	if c.Password == "" {
		return ErrMissingPassword
	}
	if c.ProjectID == "" {
		return ErrMissingProjectID
	}
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.CloudURL == "" {
		return ErrMissingCloudURL
	}
	return nil
}
