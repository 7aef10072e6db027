package httpstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/safety-beacon/internal/api"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/limiter"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/notice"
	"github.com/and161185/safety-beacon/internal/recordstore"
	"github.com/and161185/safety-beacon/internal/repository/memory"
	"github.com/and161185/safety-beacon/internal/server/httpapi"
	"github.com/and161185/safety-beacon/internal/service"
	"github.com/and161185/safety-beacon/internal/session"
)

func newBackend(t *testing.T) string {
	t.Helper()
	store := memory.New()
	accounts, bookmarks := store.Accounts(), store.Bookmarks()
	lim, err := limiter.NewMemory(limiter.DefaultPolicy, 0)
	require.NoError(t, err)

	authSvc := service.NewAuthService(accounts, []byte("test-key"), time.Hour, lim)
	accSvc := service.NewAccountService(accounts)
	bmSvc := service.NewBookmarkService(accounts, bookmarks)
	qSvc := service.NewQueryService(accSvc, bmSvc)

	srv := httptest.NewServer(httpapi.New(authSvc, accSvc, bmSvc, qSvc, zaptest.NewLogger(t)).Routes())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newClient(t *testing.T, base, cachePath string) *Client {
	t.Helper()
	c, err := New(base, NewCache(cachePath), zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	t.Parallel()
	_, err := New("not a url", NewCache(filepath.Join(t.TempDir(), "s.toml")), nil)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestClient_EndToEnd(t *testing.T) {
	t.Parallel()
	base := newBackend(t)
	dir := t.TempDir()
	ctx := context.Background()

	ptStore := newClient(t, base, filepath.Join(dir, "pt.toml"))
	ctPath := filepath.Join(dir, "ct.toml")
	ctStore := newClient(t, base, ctPath)

	_, ok := ctStore.CurrentCachedHandle()
	require.False(t, ok)
	_, err := ctStore.Query(ctx, recordstore.CollectionAccounts)
	require.ErrorIs(t, err, errs.ErrNoSession)

	pt, err := ptStore.CreateRecord(ctx, model.Registration{Email: "pt@example.com", Password: "pw"})
	require.NoError(t, err)
	ct, err := ctStore.CreateRecord(ctx, model.Registration{Email: "ct@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "ct@example.com", ct.Account.Username)

	_, err = ctStore.CreateRecord(ctx, model.Registration{Email: "ct@example.com", Password: "pw"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	linked, err := ctStore.Link(ctx, "pt@example.com")
	require.NoError(t, err)
	require.NotNil(t, linked.Account.Patient)
	require.Equal(t, pt.Account.ID, linked.Account.Patient.ID)
	require.Equal(t, ct.AccessToken, linked.AccessToken)

	_, err = ctStore.Link(ctx, "pt@example.com")
	require.ErrorIs(t, err, errs.ErrAlreadyLinked)

	// a fresh process rehydrates the linked handle from disk
	again := newClient(t, base, ctPath)
	h, ok := again.CurrentCachedHandle()
	require.True(t, ok)
	require.NotNil(t, h.Account.Patient)

	fetched, err := again.Fetch(ctx, model.AccountRef{ID: pt.Account.ID})
	require.NoError(t, err)
	require.Equal(t, "pt@example.com", fetched.Email)
	require.NotNil(t, fetched.Caretaker)

	c := &model.Coordinate{Latitude: 42.98, Longitude: -81.24}
	b, err := again.CreateBookmark(ctx, model.Bookmark{Patient: pt.Account.Ref(), Name: "Home", Address: "221B Baker St, London, ON, N6A1A1", Coordinate: c})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, b.ID)

	recs, err := ptStore.Query(ctx, recordstore.CollectionBookmarks, recordstore.Eq(recordstore.FieldPatient, pt.Account.Ref()))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got, err := recordstore.BookmarkFromRecord(recs[0])
	require.NoError(t, err)
	require.Equal(t, "Home", got.Name)
	require.NotNil(t, got.Coordinate)
	require.InDelta(t, c.Latitude, got.Coordinate.Latitude, 1e-9)

	_, err = ptStore.Query(ctx, recordstore.CollectionBookmarks, recordstore.Eq(recordstore.FieldPatient, pt.Account.ID.String()))
	require.ErrorIs(t, err, errs.ErrQueryTypeMismatch)

	name := "Office"
	upd, err := ctStore.UpdateBookmark(ctx, b.ID, model.BookmarkChange{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Office", upd.Name)
	require.NotNil(t, upd.Coordinate)

	require.NoError(t, ctStore.DeleteBookmark(ctx, b.ID))
	require.ErrorIs(t, ctStore.DeleteBookmark(ctx, b.ID), errs.ErrNotFound)

	_, err = ctStore.Authenticate(ctx, "ct@example.com", "wrong")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	h, err = ctStore.Authenticate(ctx, "CT@example.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, h.Account.Patient)

	require.NoError(t, ctStore.SignOut(ctx))
	_, ok = ctStore.CurrentCachedHandle()
	require.False(t, ok)
	_, ok = newClient(t, base, ctPath).CurrentCachedHandle()
	require.False(t, ok, "sign-out must drop the cache file")
	require.NoError(t, ctStore.SignOut(ctx))
}

func TestClient_StrangerForbidden(t *testing.T) {
	t.Parallel()
	base := newBackend(t)
	dir := t.TempDir()
	ctx := context.Background()

	ptStore := newClient(t, base, filepath.Join(dir, "pt.toml"))
	xStore := newClient(t, base, filepath.Join(dir, "x.toml"))

	pt, err := ptStore.CreateRecord(ctx, model.Registration{Email: "pt@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = xStore.CreateRecord(ctx, model.Registration{Email: "x@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = xStore.CreateBookmark(ctx, model.Bookmark{Patient: pt.Account.Ref(), Name: "Home", Address: "1 Main St"})
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = xStore.Fetch(ctx, pt.Account.Ref())
	require.ErrorIs(t, err, errs.ErrForbidden)
}

// statusBackend answers every request with status and an API error body.
func statusBackend(t *testing.T, status int, code string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"x","code":"` + code + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func cachedClient(t *testing.T, base string) (*Client, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s.toml")
	require.NoError(t, NewCache(path).Save(sampleHandle(time.Now().Add(time.Hour))))
	return newClient(t, base, path), path
}

func TestSignOut_ServerFailureKeepsHandle(t *testing.T) {
	t.Parallel()
	c, path := cachedClient(t, statusBackend(t, http.StatusInternalServerError, api.CodeInternal))

	require.Error(t, c.SignOut(context.Background()))
	_, ok := c.CurrentCachedHandle()
	require.True(t, ok)
	_, ok = newClient(t, "http://unused.invalid", path).CurrentCachedHandle()
	require.True(t, ok, "cache file must survive a failed sign-out")
}

func TestSignOut_RejectedTokenClears(t *testing.T) {
	t.Parallel()
	c, path := cachedClient(t, statusBackend(t, http.StatusUnauthorized, api.CodeUnauthorized))

	require.NoError(t, c.SignOut(context.Background()))
	_, ok := c.CurrentCachedHandle()
	require.False(t, ok)
	_, ok = NewCache(path).Load()
	require.False(t, ok)
}

func TestManagerLogout_ServerFailureKeepsSession(t *testing.T) {
	t.Parallel()
	c, _ := cachedClient(t, statusBackend(t, http.StatusInternalServerError, api.CodeInternal))
	rec := &notice.Recorder{}
	m := session.NewManager(c, nil, rec, zaptest.NewLogger(t))

	before := m.Current()
	require.NotNil(t, before)
	require.False(t, m.Logout(context.Background()))
	after := m.Current()
	require.NotNil(t, after)
	require.Equal(t, before.ID(), after.ID())
	require.Len(t, rec.Messages(), 1)
	require.Equal(t, notice.Danger, rec.Messages()[0].Level)
}

func TestCurrentCachedHandle_ExpiresInMemory(t *testing.T) {
	t.Parallel()
	now := time.Now()
	cache := NewCache(filepath.Join(t.TempDir(), "s.toml"))
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Save(sampleHandle(now.Add(time.Minute))))
	c, err := New("http://unused.invalid", cache, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, ok := c.CurrentCachedHandle()
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.CurrentCachedHandle()
	require.False(t, ok, "expired handle still served from memory")
}
