// Package vocabulary implements the vocabulary client (C11): a thin HTTP
// lookup against an external domain-ontology service, with a trivial
// in-memory cache and no retry policy — spec.md calls this component
// "pure HTTP + in-memory index; trivial" and explicitly out of core scope.
package vocabulary

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	dserrors "github.com/dupesmith/dupesmith/internal/errors"
	"github.com/dupesmith/dupesmith/internal/model"
)

// Client looks up vocabulary terms over HTTP, caching every result it
// sees for the life of the process.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	cache map[string]model.VocabularyTerm
}

// New returns a Client against baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: http.DefaultClient,
		cache:      make(map[string]model.VocabularyTerm),
	}
}

// Lookup returns the vocabulary term for name, serving from the in-memory
// cache when present.
func (c *Client) Lookup(ctx context.Context, name string) (model.VocabularyTerm, error) {
	c.mu.RLock()
	if term, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return term, nil
	}
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/terms/"+name, nil)
	if err != nil {
		return model.VocabularyTerm{}, dserrors.Wrap(dserrors.InvalidInput, err, "failed to build vocabulary request")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return model.VocabularyTerm{}, dserrors.Wrap(dserrors.ExecutionError, err, "vocabulary request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.VocabularyTerm{}, dserrors.Newf(dserrors.ExecutionError, "vocabulary service returned %d", resp.StatusCode)
	}

	var term model.VocabularyTerm
	if err := json.NewDecoder(resp.Body).Decode(&term); err != nil {
		return model.VocabularyTerm{}, dserrors.Wrap(dserrors.MalformedOutput, err, "failed to decode vocabulary response")
	}

	c.mu.Lock()
	c.cache[name] = term
	c.mu.Unlock()

	return term, nil
}
