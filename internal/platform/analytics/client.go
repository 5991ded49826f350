// Package analytics reads anomaly and forecast results from the external
// analytics service. Responses are cached in redis when a client is attached.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cachePrefix = "analytics:"

var (
	// ErrUnavailable wraps transport failures and non-2xx answers.
	ErrUnavailable = errors.New("analytics service unavailable")
	// ErrInsufficientData is returned when the service cannot compute a forecast.
	ErrInsufficientData = errors.New("analytics service has insufficient data")
)

// Anomaly is one flagged record. The service decides its fields.
type Anomaly map[string]interface{}

// ForecastPoint is the predicted count for a calendar month.
type ForecastPoint struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Count int `json:"count"`
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	CacheTTL   time.Duration
}

type Client struct {
	http   *resty.Client
	cache  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4 * opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, ttl: opts.CacheTTL, logger: zerolog.Nop()}
}

// WithCache enables response caching for the client's TTL. A zero TTL leaves
// caching off.
func (c *Client) WithCache(rdb *redis.Client) *Client {
	if c.ttl > 0 {
		c.cache = rdb
	}
	return c
}

func (c *Client) SetLogger(l zerolog.Logger) { c.logger = l }

func (c *Client) GetAnomalies(ctx context.Context) ([]Anomaly, error) {
	body, err := c.fetch(ctx, "/anomalies")
	if err != nil {
		return nil, err
	}
	out := []Anomaly{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode anomalies: %v", ErrUnavailable, err)
	}
	return out, nil
}

// GetForecast returns monthly predictions ordered by year then month.
func (c *Client) GetForecast(ctx context.Context) ([]ForecastPoint, error) {
	body, err := c.fetch(ctx, "/forecast")
	if err != nil {
		return nil, err
	}
	return parseForecast(body)
}

// parseForecast decodes {"2024-3": 12, ...} or {"error": "..."}.
func parseForecast(body []byte) ([]ForecastPoint, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode forecast: %v", ErrUnavailable, err)
	}
	if msg, ok := raw["error"]; ok {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientData, strings.Trim(string(msg), `"`))
	}

	points := make([]ForecastPoint, 0, len(raw))
	for period, v := range raw {
		y, m, ok := strings.Cut(period, "-")
		year, yErr := strconv.Atoi(y)
		month, mErr := strconv.Atoi(m)
		if !ok || yErr != nil || mErr != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("%w: bad forecast period %q", ErrUnavailable, period)
		}
		var count float64
		if err := json.Unmarshal(v, &count); err != nil {
			return nil, fmt.Errorf("%w: bad forecast value for %s", ErrUnavailable, period)
		}
		points = append(points, ForecastPoint{Year: year, Month: month, Count: int(count)})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Year != points[j].Year {
			return points[i].Year < points[j].Year
		}
		return points[i].Month < points[j].Month
	})
	return points, nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	key := cachePrefix + strings.TrimPrefix(path, "/")
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, redis.Nil):
			c.logger.Warn().Err(err).Str("key", key).Msg("analytics cache read failed")
		}
	}

	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUnavailable, path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrUnavailable, path, resp.StatusCode())
	}
	body := resp.Body()

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("analytics cache write failed")
		}
	}
	return body, nil
}
