package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/infra/auth"
	"github.com/fixora/auditreport/internal/infra/logger"
	"github.com/fixora/auditreport/internal/ports"
)

// maxBodySize bounds how much of a backend response is read.
const maxBodySize = 16 << 20

// ClientConfig configures the REST event source
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client reads audit and modification logs from the backend REST API
type Client struct {
	baseURL    string
	cacheTTL   time.Duration
	httpClient *http.Client
	normalizer *Normalizer
	cache      ports.ResponseCache
	logger     logger.Logger
}

// NewClient creates a REST event source. cache may be nil.
func NewClient(config ClientConfig, normalizer *Normalizer, cache ports.ResponseCache, log logger.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		cacheTTL:   config.CacheTTL,
		httpClient: &http.Client{Timeout: config.Timeout},
		normalizer: normalizer,
		cache:      cache,
		logger:     log,
	}
}

var _ ports.EventSource = (*Client)(nil)

// List fetches one page of the query's schema and normalizes it.
// The caller's bearer token is forwarded so backend permissions still apply.
func (c *Client) List(ctx context.Context, query domain.LogQuery) (*domain.EventPage, error) {
	if _, err := domain.ParseLogSchema(string(query.Schema)); err != nil {
		return nil, err
	}
	query = query.Normalize()

	endpoint := c.URL(query)
	token := auth.BearerToken(ctx)

	body, err := c.fetch(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}

	page, err := c.normalizer.ParsePage(query.Schema, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", query.Schema, err)
	}
	if page.Page == 0 {
		page.Page = query.Page
	}
	if page.PerPage == 0 {
		page.PerPage = query.PerPage
	}

	for _, rejected := range page.Rejected {
		c.logger.Warn(ctx, "Backend record rejected", map[string]interface{}{
			"schema": query.Schema,
			"index":  rejected.Index,
			"id":     rejected.EventID,
			"field":  rejected.Field,
			"reason": rejected.Reason,
		})
	}

	return page, nil
}

// URL builds the backend list URL for the query.
func (c *Client) URL(query domain.LogQuery) string {
	params := url.Values{}
	set := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}

	set("date", query.Date)
	set("month", query.Month)
	set("search", query.Search)
	set("action", query.Action)
	if query.Schema == domain.SchemaModificationLog {
		set("table", query.Table)
		set("record_id", query.RecordID)
	}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("per_page", strconv.Itoa(query.PerPage))

	return c.baseURL + "/" + string(query.Schema) + "?" + params.Encode()
}

func (c *Client) fetch(ctx context.Context, endpoint, token string) ([]byte, error) {
	key := CacheKey(endpoint, token)
	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn(ctx, "Response cache read failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			c.logger.Debug(ctx, "Response cache hit", map[string]interface{}{"url": endpoint})
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read backend response: %w", err)
	}

	logger.LogPerformance(ctx, c.logger, "backend.fetch", time.Since(start), map[string]interface{}{
		"url":    endpoint,
		"status": resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			c.logger.Warn(ctx, "Response cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return body, nil
}

// CacheKey identifies a response by URL and caller, so one user's page is
// never served to another.
func CacheKey(endpoint, token string) string {
	sum := sha256.Sum256([]byte(endpoint + "\x00" + token))
	return hex.EncodeToString(sum[:])
}

// upstreamMessage picks the backend's own error message when it sent one.
func upstreamMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String {
			return msg.String()
		}
	}
	return ""
}
