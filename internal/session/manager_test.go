package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/notice"
	"github.com/and161185/safety-beacon/internal/recordstore"
	"github.com/gofrs/uuid/v5"
)

type fakeStore struct {
	mu sync.Mutex

	accounts map[uuid.UUID]model.Account
	cached   *model.Handle

	authHandle model.Handle
	authErr    error
	createErr  error
	signOutErr error
	linkHandle model.Handle
	linkErr    error

	// fetch blocks until release is closed when release is non-nil
	release chan struct{}

	authCalls   int
	createCalls int
	fetchCalls  int
	queryCalls  int
	lastReg     model.Registration
}

var (
	_ recordstore.Store  = (*fakeStore)(nil)
	_ recordstore.Linker = (*fakeStore)(nil)
)

func (f *fakeStore) Authenticate(_ context.Context, username, _ string) (model.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return model.Handle{}, f.authErr
	}
	h := f.authHandle
	h.Account.Username, h.Account.Email = username, username
	f.cached = &h
	return h, nil
}

func (f *fakeStore) CreateRecord(_ context.Context, reg model.Registration) (model.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastReg = reg
	if f.createErr != nil {
		return model.Handle{}, f.createErr
	}
	h := model.Handle{
		Account:     model.Account{ID: uuid.Must(uuid.NewV4()), Username: reg.Username, Email: reg.Email},
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	f.cached = &h
	return h, nil
}

func (f *fakeStore) Query(context.Context, string, ...recordstore.Filter) ([]recordstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	return nil, nil
}

func (f *fakeStore) Fetch(ctx context.Context, ref model.AccountRef) (model.Account, error) {
	f.mu.Lock()
	f.fetchCalls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.Account{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[ref.ID]
	if !ok {
		return model.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) CurrentCachedHandle() (model.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil {
		return model.Handle{}, false
	}
	return *f.cached, true
}

func (f *fakeStore) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.cached = nil
	return nil
}

func (f *fakeStore) Link(context.Context, string) (model.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return model.Handle{}, f.linkErr
	}
	f.cached = &f.linkHandle
	return f.linkHandle, nil
}

func newManager(t *testing.T, st *fakeStore) (*Manager, *notice.Recorder) {
	t.Helper()
	log := zaptest.NewLogger(t)
	res, err := NewResolver(st, 0, log)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	rec := &notice.Recorder{}
	return NewManager(st, res, rec, log), rec
}

func handleFor(caretaker, patient *model.AccountRef) model.Handle {
	return model.Handle{
		Account: model.Account{
			ID:        uuid.Must(uuid.NewV4()),
			Caretaker: caretaker,
			Patient:   patient,
		},
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for prefetch")
	}
}

func TestManager_Current_NoCache(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t, &fakeStore{})
	if s := m.Current(); s != nil {
		t.Fatalf("want no session, got %v", s.ID())
	}
}

func TestManager_Current_RehydratesIdempotentlyWithoutNetwork(t *testing.T) {
	t.Parallel()
	caretaker := model.NewAccountRef(uuid.Must(uuid.NewV4()))
	h := handleFor(caretaker, nil)
	st := &fakeStore{cached: &h, release: make(chan struct{})}
	m, _ := newManager(t, st)

	// fetch is blocked: Current must still return immediately
	s1 := m.Current()
	if s1 == nil || s1.ID() != h.Account.ID {
		t.Fatalf("rehydrate: got %v", s1)
	}
	s2 := m.Current()
	if s2.ID() != s1.ID() {
		t.Fatalf("rehydration changed identity: %s vs %s", s2.ID(), s1.ID())
	}
	if st.authCalls != 0 || st.queryCalls != 0 {
		t.Fatalf("Current made remote calls: auth=%d query=%d", st.authCalls, st.queryCalls)
	}
	close(st.release)
	waitClosed(t, m.Prefetched())
}

func TestManager_Current_DiscardsCorruptCache(t *testing.T) {
	t.Parallel()
	h := handleFor(model.NewAccountRef(uuid.Must(uuid.NewV4())), model.NewAccountRef(uuid.Must(uuid.NewV4())))
	m, _ := newManager(t, &fakeStore{cached: &h})
	if s := m.Current(); s != nil {
		t.Fatalf("corrupt cached handle must not produce a session")
	}
}

func TestManager_Login_SessionVisibleBeforePrefetch(t *testing.T) {
	t.Parallel()
	caretakerID := uuid.Must(uuid.NewV4())
	st := &fakeStore{
		authHandle: handleFor(model.NewAccountRef(caretakerID), nil),
		accounts:   map[uuid.UUID]model.Account{caretakerID: {ID: caretakerID, Email: "care@example.com"}},
		release:    make(chan struct{}),
	}
	m, rec := newManager(t, st)

	if ok := m.Login(context.Background(), model.Credentials{Email: "pat@example.com", Password: "pw"}); !ok {
		t.Fatalf("login failed: %+v", rec.Messages())
	}
	s := m.Current()
	if s == nil || s.Username() != "pat@example.com" || s.Email() != "pat@example.com" {
		t.Fatalf("bad session after login: %+v", s)
	}
	if _, state := m.Caretaker(); state != RefUnresolved {
		t.Fatalf("caretaker state before prefetch: %v", state)
	}
	if _, state := m.Patient(); state != RefAbsent {
		t.Fatalf("patient state: %v", state)
	}

	close(st.release)
	waitClosed(t, m.Prefetched())

	acc, state := m.Caretaker()
	if state != RefResolved || acc.Email != "care@example.com" {
		t.Fatalf("caretaker after prefetch: %v %+v", state, acc)
	}
	rel, ok := m.Relationship()
	if !ok || rel.Role != RolePatient || rel.State != RefResolved {
		t.Fatalf("relationship: %+v ok=%v", rel, ok)
	}
}

func TestManager_Login_PrefetchFailureKeepsSession(t *testing.T) {
	t.Parallel()
	st := &fakeStore{authHandle: handleFor(nil, model.NewAccountRef(uuid.Must(uuid.NewV4())))}
	m, _ := newManager(t, st)

	if !m.Login(context.Background(), model.Credentials{Email: "c@example.com", Password: "pw"}) {
		t.Fatalf("login failed")
	}
	waitClosed(t, m.Prefetched())
	if m.Current() == nil {
		t.Fatalf("failed prefetch must not drop the session")
	}
	if _, state := m.Patient(); state != RefUnresolved {
		t.Fatalf("want unresolved after failed fetch, got %v", state)
	}
}

func TestManager_Login_FailureLeavesStateAndNotifies(t *testing.T) {
	t.Parallel()
	st := &fakeStore{authHandle: handleFor(nil, nil)}
	m, rec := newManager(t, st)

	if !m.Login(context.Background(), model.Credentials{Email: "a@example.com", Password: "pw"}) {
		t.Fatalf("first login failed")
	}
	before := m.Current().ID()

	st.authErr = errs.ErrUnauthorized
	if m.Login(context.Background(), model.Credentials{Email: "b@example.com", Password: "bad"}) {
		t.Fatalf("want failed login")
	}
	if got := m.Current(); got == nil || got.ID() != before {
		t.Fatalf("failed login changed the session")
	}
	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0].Level != notice.Danger || msgs[0].Title != "Invalid email or password" {
		t.Fatalf("notices: %+v", msgs)
	}
}

func TestManager_Login_CorruptRelationshipRejected(t *testing.T) {
	t.Parallel()
	st := &fakeStore{authHandle: handleFor(
		model.NewAccountRef(uuid.Must(uuid.NewV4())),
		model.NewAccountRef(uuid.Must(uuid.NewV4())),
	)}
	m, rec := newManager(t, st)

	if m.Login(context.Background(), model.Credentials{Email: "x@example.com", Password: "pw"}) {
		t.Fatalf("corrupt account must not log in")
	}
	if len(rec.Messages()) != 1 {
		t.Fatalf("want one notice, got %+v", rec.Messages())
	}
}

func TestManager_LoginInBackground(t *testing.T) {
	t.Parallel()
	st := &fakeStore{authHandle: handleFor(nil, nil)}
	m, _ := newManager(t, st)

	select {
	case ok := <-m.LoginInBackground(context.Background(), model.Credentials{Email: "a@example.com", Password: "pw"}):
		if !ok {
			t.Fatalf("background login failed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("background login never completed")
	}
	if m.Current() == nil {
		t.Fatalf("no session after background login")
	}
}

func TestManager_Register_UsernameIsEmail(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	m, _ := newManager(t, st)

	ok := <-m.RegisterInBackground(context.Background(), model.Credentials{Email: "new@example.com", Password: "pw"})
	if !ok {
		t.Fatalf("register failed")
	}
	if st.lastReg.Username != "new@example.com" || st.lastReg.Email != "new@example.com" {
		t.Fatalf("registration fields: %+v", st.lastReg)
	}
	s := m.Current()
	if s == nil || !s.RequiresSetup() {
		t.Fatalf("fresh account should require setup: %+v", s)
	}

	st.createErr = errs.ErrAlreadyExists
	if m.Register(context.Background(), model.Credentials{Email: "new@example.com", Password: "pw"}) {
		t.Fatalf("want duplicate registration to fail")
	}
	if m.Current().ID() != s.ID() {
		t.Fatalf("failed register changed the session")
	}
}

func TestManager_Logout_ClearsEvenWithPrefetchInFlight(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		authHandle: handleFor(nil, model.NewAccountRef(uuid.Must(uuid.NewV4()))),
		release:    make(chan struct{}),
	}
	m, _ := newManager(t, st)

	if !m.Login(context.Background(), model.Credentials{Email: "c@example.com", Password: "pw"}) {
		t.Fatalf("login failed")
	}
	pending := m.Prefetched()

	if ok := <-m.LogoutInBackground(context.Background()); !ok {
		t.Fatalf("logout failed")
	}
	if s := m.Current(); s != nil {
		t.Fatalf("session survived logout: %v", s.ID())
	}
	// cancelled prefetch finishes without the release
	waitClosed(t, pending)
	if s := m.Current(); s != nil {
		t.Fatalf("prefetch completion resurrected the session")
	}
	if _, ok := m.Relationship(); ok {
		t.Fatalf("relationship reported without session")
	}
}

func TestManager_Logout_FailureKeepsSession(t *testing.T) {
	t.Parallel()
	st := &fakeStore{authHandle: handleFor(nil, nil)}
	m, rec := newManager(t, st)
	if !m.Login(context.Background(), model.Credentials{Email: "a@example.com", Password: "pw"}) {
		t.Fatalf("login failed")
	}

	st.signOutErr = errors.New("network down")
	if m.Logout(context.Background()) {
		t.Fatalf("want logout failure")
	}
	if m.Current() == nil {
		t.Fatalf("failed logout dropped the session")
	}
	if msgs := rec.Messages(); len(msgs) != 1 || msgs[0].Title != "network down" {
		t.Fatalf("notices: %+v", msgs)
	}
}

func TestManager_Link(t *testing.T) {
	t.Parallel()
	patientID := uuid.Must(uuid.NewV4())
	unlinked := handleFor(nil, nil)
	linked := unlinked
	linked.Account.Patient = model.NewAccountRef(patientID)

	st := &fakeStore{
		authHandle: unlinked,
		linkHandle: linked,
		accounts:   map[uuid.UUID]model.Account{patientID: {ID: patientID, Email: "p@example.com"}},
	}
	m, rec := newManager(t, st)

	if m.Link(context.Background(), "p@example.com") {
		t.Fatalf("link without session must fail")
	}
	if !m.Login(context.Background(), model.Credentials{Email: "c@example.com", Password: "pw"}) {
		t.Fatalf("login failed")
	}
	if !m.Link(context.Background(), "p@example.com") {
		t.Fatalf("link failed: %+v", rec.Messages())
	}
	s := m.Current()
	if s.Role() != RoleCaretaker || s.IsPatient() || !s.IsCaretaker() {
		t.Fatalf("after link: role=%v", s.Role())
	}
	waitClosed(t, m.Prefetched())
	if acc, state := m.Patient(); state != RefResolved || acc.ID != patientID {
		t.Fatalf("patient not prefetched: %v %+v", state, acc)
	}
	if m.Link(context.Background(), "p@example.com") {
		t.Fatalf("second link must fail")
	}
}

func TestManager_Link_RefetchesPatient(t *testing.T) {
	t.Parallel()
	patientID := uuid.Must(uuid.NewV4())
	unlinked := handleFor(nil, nil)
	linked := unlinked
	linked.Account.Patient = model.NewAccountRef(patientID)

	st := &fakeStore{
		authHandle: unlinked,
		linkHandle: linked,
		accounts:   map[uuid.UUID]model.Account{patientID: {ID: patientID, Email: "p@example.com"}},
	}
	m, _ := newManager(t, st)
	if !m.Login(context.Background(), model.Credentials{Email: "c@example.com", Password: "pw"}) {
		t.Fatalf("login failed")
	}
	// a copy cached before the link has no caretaker
	if _, err := m.resolver.Resolve(context.Background(), model.AccountRef{ID: patientID}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st.mu.Lock()
	st.accounts[patientID] = model.Account{ID: patientID, Email: "p@example.com", Caretaker: model.NewAccountRef(unlinked.Account.ID)}
	st.mu.Unlock()

	if !m.Link(context.Background(), "p@example.com") {
		t.Fatalf("link failed")
	}
	waitClosed(t, m.Prefetched())
	acc, state := m.Patient()
	if state != RefResolved || acc.Caretaker == nil || acc.Caretaker.ID != unlinked.Account.ID {
		t.Fatalf("stale patient after link: %v %+v", state, acc)
	}
}
