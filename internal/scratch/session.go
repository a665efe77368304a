package scratch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Cookie names used by the Scratch site.
const (
	csrfCookie    = "scratchcsrftoken"
	sessionCookie = "scratchsessionsid"
)

// Login errors.
var (
	ErrLoginRejected  = errors.New("scratch login rejected")
	ErrMissingSession = errors.New("scratch login returned no session cookie")
)

// Session is an authenticated Scratch login.
type Session struct {
	Username  string
	SessionID string
}

type loginResult struct {
	Username string `json:"username"`
	Success  int    `json:"success"`
	Msg      string `json:"msg"`
}

// Login authenticates against the Scratch site and returns the session.
func Login(ctx context.Context, client *http.Client, cfg Config) (*Session, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")

	csrf, err := fetchCSRFToken(ctx, client, base, cfg.UserAgent)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"username": cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/login/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", base)
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: csrf})

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrLoginRejected, resp.StatusCode)
	}

	var results []loginResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if len(results) == 0 || results[0].Success != 1 {
		msg := ""
		if len(results) > 0 {
			msg = results[0].Msg
		}
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, msg)
	}

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			username := results[0].Username
			if username == "" {
				username = cfg.Username
			}
			return &Session{Username: username, SessionID: c.Value}, nil
		}
	}
	return nil, ErrMissingSession
}

func fetchCSRFToken(ctx context.Context, client *http.Client, base, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/csrf_token/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build csrf request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("csrf request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	for _, c := range resp.Cookies() {
		if c.Name == csrfCookie && c.Value != "" {
			return c.Value, nil
		}
	}
	// The login endpoint accepts a placeholder token when the site does not
	// hand one out.
	return "a", nil
}
