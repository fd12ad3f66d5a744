package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
)

// Config holds identity graph connection settings.
type Config struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	OwnerID           string        `yaml:"owner_id"`
	WelcomeIdentityID string        `yaml:"welcome_identity_id"`
}

// HTTPGraph implements Graph over a JSON HTTP API.
type HTTPGraph struct {
	baseURL    string
	apiKey     string
	ownerID    string
	httpClient *http.Client
}

// NewHTTPGraph creates a new HTTP identity graph client.
func NewHTTPGraph(cfg Config) *HTTPGraph {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGraph{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		ownerID: cfg.OwnerID,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Search finds identities by exact email. An empty ownerID searches the
// configured default namespace.
func (g *HTTPGraph) Search(ctx context.Context, email, ownerID string) ([]domain.Identity, error) {
	if ownerID == "" {
		ownerID = g.ownerID
	}
	q := url.Values{}
	q.Set("email", email)
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}

	var resp struct {
		Identities []domain.Identity `json:"identities"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/identities?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// Create creates a new identity.
func (g *HTTPGraph) Create(ctx context.Context, fields domain.IdentityFields) (*domain.Identity, error) {
	if fields.OwnerID == "" {
		fields.OwnerID = g.ownerID
	}
	var identity domain.Identity
	if err := g.do(ctx, http.MethodPost, "/v1/identities", fields, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("create identity: empty id in response")
	}
	return &identity, nil
}

// CreateContextTag creates a context tag; a 409 maps to ErrConflict.
func (g *HTTPGraph) CreateContextTag(ctx context.Context, label string) (*domain.ContextTag, error) {
	var tag domain.ContextTag
	err := g.do(ctx, http.MethodPost, "/v1/context-tags", map[string]string{"label": label}, &tag)
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// AssignTags attaches interest tags to an identity.
func (g *HTTPGraph) AssignTags(ctx context.Context, identityID string, tags []string) error {
	path := fmt.Sprintf("/v1/identities/%s/tags", url.PathEscape(identityID))
	return g.do(ctx, http.MethodPost, path, map[string][]string{"tags": tags}, nil)
}

// Follow seeds a relationship between two identities.
func (g *HTTPGraph) Follow(ctx context.Context, identityID, targetID string) error {
	path := fmt.Sprintf("/v1/identities/%s/follows", url.PathEscape(identityID))
	return g.do(ctx, http.MethodPost, path, map[string]string{"target_id": targetID}, nil)
}

// Ping checks that the graph service answers.
func (g *HTTPGraph) Ping(ctx context.Context) error {
	return g.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (g *HTTPGraph) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	endpoint := strings.SplitN(path, "?", 2)[0]

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apperr.ConnectionError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &apperr.ConnectionError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
