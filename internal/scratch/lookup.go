package scratch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/onnwee/cloudlog/internal/validate"
)

// Lookup errors.
var (
	ErrInvalidLookupURL = errors.New("invalid user lookup URL")
	ErrUserNotFound     = errors.New("user not found")
)

// DefaultLookupRate bounds user lookups per second.
const DefaultLookupRate = 2

// UserLookup resolves user ids through an HTTP endpoint that returns a JSON
// object with a "username" field. Results are cached for the life of the
// process and concurrent lookups of one id share a single request.
// It implements ingest.UserResolver.
type UserLookup struct {
	template string
	client   *http.Client
	limiter  *rate.Limiter
	group    singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// NewUserLookup creates a UserLookup. template is a URL with one %s
// placeholder for the escaped id, e.g. "https://example.org/users/%s".
func NewUserLookup(template string, client *http.Client, perSecond float64) (*UserLookup, error) {
	if _, err := validate.URLTemplate(template, validate.HTTPConstraints); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLookupURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if perSecond <= 0 {
		perSecond = DefaultLookupRate
	}
	return &UserLookup{
		template: template,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		cache:    make(map[string]string),
	}, nil
}

type lookupResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ResolveUser returns the username for id.
func (u *UserLookup) ResolveUser(ctx context.Context, id string) (string, error) {
	u.mu.RLock()
	name, ok := u.cache[id]
	u.mu.RUnlock()
	if ok {
		return name, nil
	}

	v, err, _ := u.group.Do(id, func() (interface{}, error) {
		name, err := u.fetch(ctx, id)
		if err != nil {
			return "", err
		}
		u.mu.Lock()
		u.cache[id] = name
		u.mu.Unlock()
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (u *UserLookup) fetch(ctx context.Context, id string) (string, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(u.template, url.PathEscape(id)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build lookup request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if body.Username != "" {
		return body.Username, nil
	}
	if body.Name != "" {
		return body.Name, nil
	}
	return "", ErrUserNotFound
}
