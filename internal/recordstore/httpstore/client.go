// Package httpstore implements the record store against the beacon HTTP API.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/api"
	"github.com/and161185/safety-beacon/internal/convert"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/recordstore"
)

var (
	_ recordstore.Store          = (*Client)(nil)
	_ recordstore.BookmarkWriter = (*Client)(nil)
	_ recordstore.Linker         = (*Client)(nil)
)

// Client talks to the beacon server and keeps the current handle in a Cache.
type Client struct {
	base   *url.URL
	http   *http.Client
	cache  *Cache
	schema recordstore.Schema
	log    *zap.Logger

	mu     sync.Mutex
	handle *model.Handle
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (TLS settings, timeouts).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithSchema replaces the default query schema.
func WithSchema(s recordstore.Schema) Option { return func(c *Client) { c.schema = s } }

// New returns a client for the server at baseURL.
func New(baseURL string, cache *Cache, log *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("bad server url %q: %w", baseURL, errs.ErrValidation)
	}
	if cache == nil {
		cache = NewCache("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{base: u, http: http.DefaultClient, cache: cache, schema: recordstore.DefaultSchema, log: log}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Authenticate signs in by email and caches the handle.
func (c *Client) Authenticate(ctx context.Context, username, password string) (model.Handle, error) {
	var out api.Handle
	if err := c.do(ctx, http.MethodPost, api.PathLogin, "", api.LoginRequest{Email: username, Password: password}, &out); err != nil {
		return model.Handle{}, err
	}
	return c.adopt(convert.FromAPIHandle(out))
}

// CreateRecord registers a new account and caches the handle.
func (c *Client) CreateRecord(ctx context.Context, reg model.Registration) (model.Handle, error) {
	var out api.Handle
	req := api.RegisterRequest{Username: reg.Username, Email: reg.Email, Password: reg.Password}
	if err := c.do(ctx, http.MethodPost, api.PathAccounts, "", req, &out); err != nil {
		return model.Handle{}, err
	}
	return c.adopt(convert.FromAPIHandle(out))
}

// Query compiles filters against the schema before sending; a mistyped filter never leaves the process.
func (c *Client) Query(ctx context.Context, collection string, filters ...recordstore.Filter) ([]recordstore.Record, error) {
	wire, err := c.schema.Compile(collection, filters)
	if err != nil {
		return nil, err
	}
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	var out api.QueryResponse
	path := api.PathQuery + "/" + url.PathEscape(collection)
	if err := c.do(ctx, http.MethodPost, path, tok, api.QueryRequest{Filters: wire}, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Fetch loads the account ref points at.
func (c *Client) Fetch(ctx context.Context, ref model.AccountRef) (model.Account, error) {
	tok, err := c.token()
	if err != nil {
		return model.Account{}, err
	}
	var out api.Account
	if err := c.do(ctx, http.MethodGet, api.PathAccounts+"/"+ref.ID.String(), tok, nil, &out); err != nil {
		return model.Account{}, err
	}
	return convert.FromAPIAccount(out), nil
}

// CurrentCachedHandle returns the in-memory handle, else the one on disk. No network call.
// An expired handle reads as absent.
func (c *Client) CurrentCachedHandle() (model.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		if c.handle.Valid(c.cache.now()) {
			return *c.handle, true
		}
		c.log.Debug("cached handle expired", zap.Time("expires_at", c.handle.ExpiresAt))
		c.handle = nil
	}
	h, ok := c.cache.Load()
	if !ok {
		return model.Handle{}, false
	}
	c.handle = &h
	return h, true
}

// SignOut signs out remotely, then drops the local handle. A failed remote
// call keeps the handle; a rejected token counts as already signed out.
func (c *Client) SignOut(ctx context.Context) error {
	h, ok := c.CurrentCachedHandle()
	if ok {
		err := c.do(ctx, http.MethodPost, api.PathLogout, h.AccessToken, nil, nil)
		if err != nil && !errors.Is(err, errs.ErrUnauthorized) {
			return fmt.Errorf("sign out: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = nil
	return c.cache.Clear()
}

// CreateBookmark stores a new bookmark.
func (c *Client) CreateBookmark(ctx context.Context, b model.Bookmark) (model.Bookmark, error) {
	tok, err := c.token()
	if err != nil {
		return model.Bookmark{}, err
	}
	var out api.Bookmark
	if err := c.do(ctx, http.MethodPost, api.PathBookmarks, tok, convert.ToAPIBookmark(b), &out); err != nil {
		return model.Bookmark{}, err
	}
	return convert.FromAPIBookmark(out)
}

// UpdateBookmark applies a partial change.
func (c *Client) UpdateBookmark(ctx context.Context, id uuid.UUID, ch model.BookmarkChange) (model.Bookmark, error) {
	tok, err := c.token()
	if err != nil {
		return model.Bookmark{}, err
	}
	var out api.Bookmark
	if err := c.do(ctx, http.MethodPut, api.PathBookmarks+"/"+id.String(), tok, convert.ToAPIBookmarkChange(ch), &out); err != nil {
		return model.Bookmark{}, err
	}
	return convert.FromAPIBookmark(out)
}

// DeleteBookmark removes a bookmark.
func (c *Client) DeleteBookmark(ctx context.Context, id uuid.UUID) error {
	tok, err := c.token()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, api.PathBookmarks+"/"+id.String(), tok, nil, nil)
}

// Link links the signed-in account, as caretaker, to the patient registered under patientEmail.
// The cached handle is refreshed with the updated account.
func (c *Client) Link(ctx context.Context, patientEmail string) (model.Handle, error) {
	h, ok := c.CurrentCachedHandle()
	if !ok {
		return model.Handle{}, errs.ErrNoSession
	}
	var out api.Account
	if err := c.do(ctx, http.MethodPost, api.PathLink, h.AccessToken, api.LinkRequest{PatientEmail: patientEmail}, &out); err != nil {
		return model.Handle{}, err
	}
	h.Account = convert.FromAPIAccount(out)
	return c.adopt(h)
}

func (c *Client) adopt(h model.Handle) (model.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = &h
	if err := c.cache.Save(h); err != nil {
		// the in-memory handle still works for this run
		c.log.Warn("session cache not saved", zap.String("path", c.cache.Path()), zap.Error(err))
	}
	return h, nil
}

func (c *Client) token() (string, error) {
	h, ok := c.CurrentCachedHandle()
	if !ok {
		return "", errs.ErrNoSession
	}
	return h.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

var codeErrors = map[string]error{
	api.CodeNotFound:          errs.ErrNotFound,
	api.CodeUnauthorized:      errs.ErrUnauthorized,
	api.CodeForbidden:         errs.ErrForbidden,
	api.CodeRateLimited:       errs.ErrRateLimited,
	api.CodeAlreadyExists:     errs.ErrAlreadyExists,
	api.CodeAlreadyLinked:     errs.ErrAlreadyLinked,
	api.CodeValidation:        errs.ErrValidation,
	api.CodeQueryTypeMismatch: errs.ErrQueryTypeMismatch,
	api.CodeCorrupt:           errs.ErrCorruptRelationship,
}

func decodeError(resp *http.Response) error {
	var e api.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	if sentinel, ok := codeErrors[e.Code]; ok {
		return fmt.Errorf("server: %s: %w", e.Error, sentinel)
	}
	return fmt.Errorf("server: unexpected status %d: %s", resp.StatusCode, e.Error)
}
