package modelinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSourceURL = "https://openrouter.ai/api/v1/models"
	DefaultTTL       = 10 * time.Minute
	fetchTimeout     = 30 * time.Second
)

// ErrEmptyModelList is returned when the upstream list has no models.
var ErrEmptyModelList = errors.New("model list is empty")

type upstreamModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	TopProvider   *struct {
		MaxCompletionTokens *int `json:"max_completion_tokens"`
	} `json:"top_provider"`
	Pricing *struct {
		Prompt         string `json:"prompt"`
		Completion     string `json:"completion"`
		InputCacheRead string `json:"input_cache_read"`
	} `json:"pricing"`
}

// Cache holds the model metadata list. Only one refresh runs at a time; concurrent
// callers wait for it.
type Cache struct {
	client    proxy.Doer
	sourceURL string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.RWMutex
	models      map[string]model.ModelInfo
	lastUpdated time.Time

	group singleflight.Group
}

// NewCache returns an empty cache. Empty sourceURL or non-positive ttl use defaults.
func NewCache(client proxy.Doer, sourceURL string, ttl time.Duration, logger *zap.Logger) *Cache {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client:    client,
		sourceURL: sourceURL,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		models:    map[string]model.ModelInfo{},
	}
}

// Snapshot returns the cached models and the time they were fetched (zero if never).
func (c *Cache) Snapshot() (map[string]model.ModelInfo, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models, c.lastUpdated
}

// Ensure populates the cache if it is empty or older than the TTL.
func (c *Cache) Ensure(ctx context.Context) error {
	_, updated := c.Snapshot()
	if !updated.IsZero() && c.now().Sub(updated) < c.ttl {
		return nil
	}
	_, err := c.Refresh(ctx)
	return err
}

// Refresh fetches the list now and returns the number of models cached. Concurrent
// calls share one fetch.
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		c.logger.Error("Model info refresh failed", zap.Error(err))
		return 0, err
	}
	return v.(int), nil
}

func (c *Cache) fetch(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	c.logger.Info("Fetching model info", zap.String("url", c.sourceURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch model info: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, fmt.Errorf("model info source returned %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("read model info: %w", err)
	}
	var payload struct {
		Data []upstreamModel `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, fmt.Errorf("decode model info: %w", err)
	}
	if len(payload.Data) == 0 {
		return 0, ErrEmptyModelList
	}

	models := make(map[string]model.ModelInfo, len(payload.Data))
	for _, m := range payload.Data {
		if m.ID == "" {
			continue
		}
		models[m.ID] = parseModel(m)
	}

	now := c.now().UTC()
	c.mu.Lock()
	c.models = models
	c.lastUpdated = now
	c.mu.Unlock()

	c.logger.Info("Model info cached", zap.Int("count", len(models)), zap.Time("updatedAt", now))
	return len(models), nil
}

func parseModel(m upstreamModel) model.ModelInfo {
	info := model.ModelInfo{
		ID:            m.ID,
		Name:          m.Name,
		ContextLength: m.ContextLength,
	}
	if m.TopProvider != nil {
		info.MaxOutput = m.TopProvider.MaxCompletionTokens
	}
	if m.Pricing != nil {
		info.Pricing.Input = parsePrice(m.Pricing.Prompt)
		info.Pricing.Output = parsePrice(m.Pricing.Completion)
		if m.Pricing.InputCacheRead != "" {
			v := parsePrice(m.Pricing.InputCacheRead)
			info.Pricing.CacheRead = &v
		}
	}
	return info
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
