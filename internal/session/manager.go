package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/notice"
	"github.com/and161185/safety-beacon/internal/recordstore"
)

// Manager owns the single active session of its composition root.
//
// Mutations are serialized; concurrent logins are not coordinated and the
// completion applied last wins. A logout always leaves no session behind, even
// while a relationship prefetch is still running.
type Manager struct {
	store    recordstore.Store
	resolver *Resolver
	notify   notice.Notifier
	log      *zap.Logger

	mu             sync.Mutex
	current        *Session
	prefetched     <-chan struct{}
	cancelPrefetch context.CancelFunc
}

// NewManager wires a manager. A nil notifier discards notices; a nil logger is a no-op logger.
func NewManager(store recordstore.Store, resolver *Resolver, n notice.Notifier, log *zap.Logger) *Manager {
	if n == nil {
		n = notice.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, resolver: resolver, notify: n, log: log, prefetched: closedChan()}
}

// Current returns the in-memory session or rehydrates one from the locally
// cached handle. It performs no network call; rehydration only starts the
// background relationship prefetch. Returns nil when nothing is cached.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current
	}
	h, ok := m.store.CurrentCachedHandle()
	if !ok {
		return nil
	}
	s, err := New(h)
	if err != nil {
		m.log.Error("discarding cached session", zap.Error(err))
		return nil
	}
	m.installLocked(context.Background(), s)
	m.log.Debug("session rehydrated", zap.String("account", s.ID().String()))
	return s
}

// Login authenticates and, on success, replaces the current session.
// On failure the current session is left as it was, the error is logged and a notice posted.
func (m *Manager) Login(ctx context.Context, c model.Credentials) bool {
	h, err := m.store.Authenticate(ctx, c.Email, c.Password)
	if err != nil {
		m.fail("login", err)
		return false
	}
	return m.adopt(ctx, "login", h)
}

// LoginInBackground runs Login in a goroutine and delivers its result.
func (m *Manager) LoginInBackground(ctx context.Context, c model.Credentials) <-chan bool {
	return background(func() bool { return m.Login(ctx, c) })
}

// Register creates an account whose username is the email, then behaves like Login.
func (m *Manager) Register(ctx context.Context, c model.Credentials) bool {
	h, err := m.store.CreateRecord(ctx, model.Registration{
		Username: c.Email,
		Email:    c.Email,
		Password: c.Password,
	})
	if err != nil {
		m.fail("register", err)
		return false
	}
	return m.adopt(ctx, "register", h)
}

// RegisterInBackground runs Register in a goroutine and delivers its result.
func (m *Manager) RegisterInBackground(ctx context.Context, c model.Credentials) <-chan bool {
	return background(func() bool { return m.Register(ctx, c) })
}

// Logout signs out remotely and clears the session. A failed sign-out keeps the session.
func (m *Manager) Logout(ctx context.Context) bool {
	if err := m.store.SignOut(ctx); err != nil {
		m.fail("logout", err)
		return false
	}
	m.mu.Lock()
	m.stopPrefetchLocked()
	m.current = nil
	m.prefetched = closedChan()
	m.mu.Unlock()
	if m.resolver != nil {
		m.resolver.Purge()
	}
	m.log.Info("logged out")
	return true
}

// LogoutInBackground runs Logout in a goroutine and delivers its result.
func (m *Manager) LogoutInBackground(ctx context.Context) <-chan bool {
	return background(func() bool { return m.Logout(ctx) })
}

// Link connects the current caretaker session to the patient registered under patientEmail.
// The store must implement recordstore.Linker.
func (m *Manager) Link(ctx context.Context, patientEmail string) bool {
	s := m.Current()
	if s == nil {
		m.fail("link", errs.ErrNoSession)
		return false
	}
	if !s.RequiresSetup() {
		m.fail("link", errs.ErrAlreadyLinked)
		return false
	}
	l, ok := m.store.(recordstore.Linker)
	if !ok {
		m.fail("link", errors.New("record store does not support linking"))
		return false
	}
	h, err := l.Link(ctx, patientEmail)
	if err != nil {
		m.fail("link", err)
		return false
	}
	// the patient record now carries its caretaker; drop any copy cached before the link
	if m.resolver != nil && h.Account.Patient != nil {
		m.resolver.Forget(*h.Account.Patient)
	}
	return m.adopt(ctx, "link", h)
}

// Prefetched closes when the relationship prefetch for the current session has finished.
func (m *Manager) Prefetched() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefetched
}

// Relationship describes the current session's link as far as it is resolved.
type Relationship struct {
	Role    Role
	Ref     *model.AccountRef
	Account model.Account
	State   RefState
}

// Relationship reports the resolved relationship of the in-memory session
// without any I/O. ok is false when there is no session.
func (m *Manager) Relationship() (rel Relationship, ok bool) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return Relationship{}, false
	}
	rel = Relationship{Role: s.Role(), Ref: s.Linked(), State: RefAbsent}
	if m.resolver != nil {
		rel.Account, rel.State = m.resolver.Lookup(rel.Ref)
	} else if rel.Ref != nil {
		rel.State = RefUnresolved
	}
	return rel, true
}

// Caretaker returns the session's caretaker account as far as it is resolved.
func (m *Manager) Caretaker() (model.Account, RefState) {
	return m.lookup(func(s *Session) *model.AccountRef { return s.CaretakerRef() })
}

// Patient returns the session's patient account as far as it is resolved.
func (m *Manager) Patient() (model.Account, RefState) {
	return m.lookup(func(s *Session) *model.AccountRef { return s.PatientRef() })
}

func (m *Manager) lookup(pick func(*Session) *model.AccountRef) (model.Account, RefState) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return model.Account{}, RefAbsent
	}
	ref := pick(s)
	if m.resolver == nil {
		if ref == nil {
			return model.Account{}, RefAbsent
		}
		return model.Account{}, RefUnresolved
	}
	return m.resolver.Lookup(ref)
}

func (m *Manager) adopt(ctx context.Context, op string, h model.Handle) bool {
	s, err := New(h)
	if err != nil {
		m.fail(op, err)
		return false
	}
	m.mu.Lock()
	m.installLocked(ctx, s)
	m.mu.Unlock()
	m.log.Info(op+" succeeded",
		zap.String("account", s.ID().String()),
		zap.String("role", s.Role().String()),
	)
	return true
}

// installLocked replaces the current session and starts its prefetch.
// The prefetch outlives ctx's cancellation but not a later install or logout.
func (m *Manager) installLocked(ctx context.Context, s *Session) {
	m.stopPrefetchLocked()
	m.current = s
	if m.resolver == nil {
		m.prefetched = closedChan()
		return
	}
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelPrefetch = cancel
	m.prefetched = m.resolver.Prefetch(pctx, s.CaretakerRef(), s.PatientRef())
}

func (m *Manager) stopPrefetchLocked() {
	if m.cancelPrefetch != nil {
		m.cancelPrefetch()
		m.cancelPrefetch = nil
	}
}

func (m *Manager) fail(op string, err error) {
	m.log.Error(op+" failed", zap.Error(err))
	m.notify.Notify(notice.Message{Level: notice.Danger, Title: userMessage(err)})
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return "Invalid email or password"
	case errors.Is(err, errs.ErrRateLimited):
		return "Too many attempts, try again later"
	case errors.Is(err, errs.ErrAlreadyExists):
		return "An account with this email already exists"
	case errors.Is(err, errs.ErrCorruptRelationship):
		return "Account relationship data is corrupt"
	case errors.Is(err, errs.ErrAlreadyLinked):
		return "Account is already linked"
	case errors.Is(err, errs.ErrNoSession):
		return "Not logged in"
	case errors.Is(err, errs.ErrNotFound):
		return "Account not found"
	default:
		return err.Error()
	}
}

func background(fn func() bool) <-chan bool {
	ch := make(chan bool, 1)
	go func() { ch <- fn() }()
	return ch
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
