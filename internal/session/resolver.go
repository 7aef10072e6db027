package session

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RefState describes how far a relationship reference has been resolved.
type RefState int

const (
	// RefAbsent means there is no reference.
	RefAbsent RefState = iota
	// RefUnresolved means the reference exists but its target is not loaded (yet, or the fetch failed).
	RefUnresolved
	// RefResolved means the target account is loaded.
	RefResolved
)

func (s RefState) String() string {
	switch s {
	case RefUnresolved:
		return "unresolved"
	case RefResolved:
		return "resolved"
	default:
		return "absent"
	}
}

// Fetcher loads an account by reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.AccountRef) (model.Account, error)
}

// DefaultCacheSize bounds the number of cached linked accounts.
const DefaultCacheSize = 64

// Resolver resolves account references through a bounded cache.
type Resolver struct {
	fetch Fetcher
	cache *lru.Cache[uuid.UUID, model.Account]
	group singleflight.Group
	log   *zap.Logger
}

// NewResolver constructs a Resolver. size <= 0 selects DefaultCacheSize.
func NewResolver(f Fetcher, size int, log *zap.Logger) (*Resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[uuid.UUID, model.Account](size)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{fetch: f, cache: c, log: log}, nil
}

// Lookup reports the cached state of ref. It never performs I/O.
func (r *Resolver) Lookup(ref *model.AccountRef) (model.Account, RefState) {
	if ref == nil {
		return model.Account{}, RefAbsent
	}
	if a, ok := r.cache.Get(ref.ID); ok {
		return a, RefResolved
	}
	return model.Account{}, RefUnresolved
}

// Resolve returns the cached account or fetches it. Concurrent calls for the same ref share one fetch.
func (r *Resolver) Resolve(ctx context.Context, ref model.AccountRef) (model.Account, error) {
	if a, ok := r.cache.Get(ref.ID); ok {
		return a, nil
	}
	v, err, _ := r.group.Do(ref.ID.String(), func() (any, error) {
		a, err := r.fetch.Fetch(ctx, ref)
		if err != nil {
			return model.Account{}, err
		}
		r.cache.Add(ref.ID, a)
		return a, nil
	})
	if err != nil {
		return model.Account{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return v.(model.Account), nil
}

// Prefetch resolves every non-nil ref in the background. The returned channel
// closes once all fetches finished; failures are logged and leave the ref unresolved.
func (r *Resolver) Prefetch(ctx context.Context, refs ...*model.AccountRef) <-chan struct{} {
	done := make(chan struct{})
	var g errgroup.Group
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		ref := *ref
		g.Go(func() error {
			_, err := r.Resolve(ctx, ref)
			return err
		})
	}
	go func() {
		defer close(done)
		if err := g.Wait(); err != nil {
			r.log.Warn("relationship prefetch incomplete", zap.Error(err))
		}
	}()
	return done
}

// Forget drops ref from the cache.
func (r *Resolver) Forget(ref model.AccountRef) { r.cache.Remove(ref.ID) }

// Purge empties the cache.
func (r *Resolver) Purge() { r.cache.Purge() }
