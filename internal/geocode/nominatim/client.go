// Package nominatim implements geocode.Provider against a Nominatim-compatible HTTP API.
package nominatim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregjones/httpcache"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/geocode"
	"github.com/and161185/safety-beacon/internal/model"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const (
	defaultLimit   = 5
	maxBodyBytes   = 1 << 20
	defaultRetries = 3
)

// Client queries /search and /reverse.
type Client struct {
	base       *url.URL
	http       *http.Client
	userAgent  string
	maxRetries uint64
	log        *zap.Logger
}

var _ geocode.Provider = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default in-memory caching HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint64) Option { return func(c *Client) { c.maxRetries = n } }

// New constructs a client. The public instance requires an identifying User-Agent.
func New(baseURL, userAgent string, log *zap.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("nominatim: parse base url: %w", err)
	}
	if userAgent == "" {
		return nil, errors.New("nominatim: user agent required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		base:       u,
		http:       httpcache.NewMemoryCacheTransport().Client(),
		userAgent:  userAgent,
		maxRetries: defaultRetries,
		log:        log,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Forward runs a free-form /search.
func (c *Client) Forward(ctx context.Context, address string) ([]geocode.Candidate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", strconv.Itoa(defaultLimit))

	body, err := c.get(ctx, "search", q)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("nominatim: search: unexpected payload %.64q", body)
	}
	var out []geocode.Candidate
	for _, r := range res.Array() {
		out = append(out, candidate(r))
	}
	return out, nil
}

// Reverse runs /reverse for a single point.
func (c *Client) Reverse(ctx context.Context, pt model.Coordinate) ([]geocode.Candidate, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(pt.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(pt.Longitude, 'f', -1, 64))
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")

	body, err := c.get(ctx, "reverse", q)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if res.Get("error").Exists() {
		// "Unable to geocode" is a miss, not a failure
		return nil, nil
	}
	if !res.IsObject() {
		return nil, fmt.Errorf("nominatim: reverse: unexpected payload %.64q", body)
	}
	return []geocode.Candidate{candidate(res)}, nil
}

func candidate(r gjson.Result) geocode.Candidate {
	var cand geocode.Candidate
	lat, lon := r.Get("lat"), r.Get("lon")
	if lat.Exists() && lon.Exists() {
		cand.Coordinate = &model.Coordinate{Latitude: lat.Float(), Longitude: lon.Float()}
	}
	if a := r.Get("address"); a.Exists() {
		street := strings.TrimSpace(a.Get("house_number").String() + " " + a.Get("road").String())
		cand.Postal = &model.PostalAddress{
			Street:     street,
			City:       firstOf(a, "city", "town", "village", "hamlet"),
			Region:     firstOf(a, "state", "province", "region"),
			PostalCode: a.Get("postcode").String(),
		}
	}
	return cand
}

func firstOf(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

// get issues a GET with retries on network errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = q.Encode()

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("nominatim: %s: status %d", path, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("nominatim: %s: status %d", path, resp.StatusCode))
		}
		body = b
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Debug("nominatim retry", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}
