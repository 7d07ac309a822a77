package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kcolemangt/llm-gateway/cache"
	"github.com/kcolemangt/llm-gateway/proxy"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrBaiduCredentials is returned when the key/secret pair is missing or rejected.
var ErrBaiduCredentials = errors.New("baidu credentials rejected")

const (
	// expirySlack refreshes tokens a little before Baidu expires them.
	expirySlack = time.Minute
	// exchangeTimeout bounds one shared token exchange.
	exchangeTimeout = 30 * time.Second
)

type baiduTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// BaiduTokenSource exchanges an API key and secret for a short-lived access token.
// Tokens are cached per key until shortly before expiry; concurrent misses share one
// exchange.
type BaiduTokenSource struct {
	client  proxy.Doer
	baseURL string
	logger  *zap.Logger
	tokens  *cache.TTLMap[string, string]
	group   singleflight.Group
	now     func() time.Time
	timeout time.Duration
}

// NewBaiduTokenSource issues token exchanges against baseURL + /oauth/2.0/token.
func NewBaiduTokenSource(client proxy.Doer, baseURL string, logger *zap.Logger) *BaiduTokenSource {
	return &BaiduTokenSource{
		client:  client,
		baseURL: proxy.NormalizeBaseURL(baseURL),
		logger:  logger,
		tokens:  cache.NewTTLMap[string, string](),
		now:     time.Now,
		timeout: exchangeTimeout,
	}
}

// Token returns a valid access token for the pair. The exchange is shared by every
// caller waiting on the same key and is not cancelled when one of them gives up.
func (s *BaiduTokenSource) Token(ctx context.Context, apiKey, secretKey string) (string, error) {
	if apiKey == "" || secretKey == "" {
		return "", ErrBaiduCredentials
	}
	if tok, ok := s.tokens.GetFresh(apiKey, s.now()); ok {
		return tok, nil
	}
	ch := s.group.DoChan(apiKey, func() (any, error) {
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.exchange(exCtx, apiKey, secretKey)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *BaiduTokenSource) exchange(ctx context.Context, apiKey, secretKey string) (string, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", apiKey)
	q.Set("client_secret", secretKey)
	endpoint := s.baseURL + "/oauth/2.0/token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu token exchange: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read baidu token response: %w", err)
	}
	var out baiduTokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode baidu token response (status %d): %w", res.StatusCode, err)
	}
	if out.AccessToken == "" {
		s.tokens.Delete(apiKey)
		return "", fmt.Errorf("%w: %s %s", ErrBaiduCredentials, out.Error, out.ErrorDescription)
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - expirySlack
	if ttl <= 0 {
		ttl = time.Second
	}
	s.tokens.SetWithTTL(apiKey, out.AccessToken, s.now(), ttl)
	s.logger.Info("Baidu access token refreshed", zap.Duration("ttl", ttl), zap.Int("cached", s.tokens.Len()))
	return out.AccessToken, nil
}
