package session

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestResolver_LookupNeverFetches(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	r, err := NewResolver(st, 4, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, state := r.Lookup(nil); state != RefAbsent {
		t.Fatalf("nil ref: %v", state)
	}
	if _, state := r.Lookup(model.NewAccountRef(uuid.Must(uuid.NewV4()))); state != RefUnresolved {
		t.Fatalf("unknown ref: %v", state)
	}
	if st.fetchCalls != 0 {
		t.Fatalf("Lookup fetched %d times", st.fetchCalls)
	}
}

func TestResolver_ResolveCachesAndDedupes(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	st := &fakeStore{
		accounts: map[uuid.UUID]model.Account{id: {ID: id, Email: "x@example.com"}},
		release:  make(chan struct{}),
	}
	r, err := NewResolver(st, 4, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), model.AccountRef{ID: id}); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	close(st.release)
	wg.Wait()

	if _, state := r.Lookup(&model.AccountRef{ID: id}); state != RefResolved {
		t.Fatalf("not cached: %v", state)
	}
	st.mu.Lock()
	calls := st.fetchCalls
	st.mu.Unlock()
	if calls < 1 || calls > 8 {
		t.Fatalf("unexpected fetch count %d", calls)
	}
	if _, err := r.Resolve(context.Background(), model.AccountRef{ID: id}); err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.fetchCalls != calls {
		t.Fatalf("cached Resolve fetched again")
	}
}

func TestResolver_PurgeAndForget(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	st := &fakeStore{accounts: map[uuid.UUID]model.Account{id: {ID: id}}}
	r, _ := NewResolver(st, 0, nil)

	waitClosed(t, r.Prefetch(context.Background(), &model.AccountRef{ID: id}, nil))
	if _, state := r.Lookup(&model.AccountRef{ID: id}); state != RefResolved {
		t.Fatalf("prefetch did not resolve")
	}
	r.Forget(model.AccountRef{ID: id})
	if _, state := r.Lookup(&model.AccountRef{ID: id}); state != RefUnresolved {
		t.Fatalf("Forget kept entry")
	}
	waitClosed(t, r.Prefetch(context.Background(), &model.AccountRef{ID: id}))
	r.Purge()
	if _, state := r.Lookup(&model.AccountRef{ID: id}); state != RefUnresolved {
		t.Fatalf("Purge kept entry")
	}
}
