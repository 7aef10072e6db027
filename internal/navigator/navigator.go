// Package navigator loads a patient's bookmarks and resolves their addresses
// before anything is shown or navigated to.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/geocode"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/notice"
	"github.com/and161185/safety-beacon/internal/recordstore"
	"github.com/and161185/safety-beacon/internal/session"
)

// User-facing notice titles.
const (
	MsgInvalidAddress  = "Invalid Address"
	MsgBookmarkDeleted = "Bookmark successfully deleted"
	MsgBookmarkSaved   = "Bookmark saved"
	MsgSetupRequired   = "Link a caretaker or patient account first"
)

// InvalidAddressDuration is how long the invalid address notice stays up.
const InvalidAddressDuration = 5 * time.Second

// Store is the part of the record store the navigator needs.
type Store interface {
	Query(ctx context.Context, collection string, filters ...recordstore.Filter) ([]recordstore.Record, error)
	recordstore.BookmarkWriter
}

// Navigator owns the in-memory bookmark snapshot.
//
// Refreshes are sequence-numbered: a response is applied only when no newer
// refresh has been applied before it, so the list always equals one complete
// response and never goes backwards.
type Navigator struct {
	store  Store
	geo    *geocode.Geocoder
	notify notice.Notifier
	log    *zap.Logger

	seq atomic.Uint64

	mu        sync.RWMutex
	applied   uint64
	bookmarks []model.Bookmark
}

// New wires a navigator. A nil notifier discards notices; a nil logger is a no-op logger.
func New(store Store, geo *geocode.Geocoder, n notice.Notifier, log *zap.Logger) *Navigator {
	if n == nil {
		n = notice.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Navigator{store: store, geo: geo, notify: n, log: log}
}

// Owner returns the patient whose bookmarks s may see.
// A linked caretaker sees the linked patient's bookmarks, a patient its own.
func Owner(s *session.Session) (model.AccountRef, error) {
	if s == nil {
		return model.AccountRef{}, errs.ErrNoSession
	}
	switch s.Role() {
	case session.RoleCaretaker:
		return *s.PatientRef(), nil
	case session.RolePatient:
		return s.AccountRef(), nil
	default:
		return model.AccountRef{}, errs.ErrSetupRequired
	}
}

// Refresh replaces the snapshot with the bookmarks visible to s.
// It returns the list now current and false when this refresh failed or was superseded.
func (n *Navigator) Refresh(ctx context.Context, s *session.Session) ([]model.Bookmark, bool) {
	seq := n.seq.Add(1)

	owner, err := Owner(s)
	if err != nil {
		n.fail("refresh", err)
		return n.Bookmarks(), false
	}

	recs, err := n.store.Query(ctx, recordstore.CollectionBookmarks,
		recordstore.Eq(recordstore.FieldPatient, owner))
	if err != nil {
		n.fail("refresh", err)
		return n.Bookmarks(), false
	}

	list := make([]model.Bookmark, 0, len(recs))
	for _, r := range recs {
		b, err := recordstore.BookmarkFromRecord(r)
		if err != nil {
			n.log.Warn("skipping malformed bookmark", zap.String("id", r.ID.String()), zap.Error(err))
			continue
		}
		list = append(list, b)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if seq < n.applied {
		n.log.Debug("discarding stale refresh", zap.Uint64("seq", seq), zap.Uint64("applied", n.applied))
		return cloneBookmarks(n.bookmarks), false
	}
	n.applied = seq
	n.bookmarks = list
	n.log.Debug("bookmarks refreshed", zap.String("owner", owner.String()), zap.Int("count", len(list)))
	return cloneBookmarks(list), true
}

// RefreshInBackground runs Refresh in a goroutine and reports whether it was applied.
func (n *Navigator) RefreshInBackground(ctx context.Context, s *session.Session) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		_, ok := n.Refresh(ctx, s)
		out <- ok
	}()
	return out
}

// Bookmarks returns a copy of the current snapshot.
func (n *Navigator) Bookmarks() []model.Bookmark {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return cloneBookmarks(n.bookmarks)
}

// Clear drops the snapshot after logout. Refreshes started before Clear are discarded.
func (n *Navigator) Clear() {
	n.mu.Lock()
	n.applied = n.seq.Add(1)
	n.bookmarks = nil
	n.mu.Unlock()
}

// ForwardGeocode resolves an address to the first candidate's coordinate; nil on a miss.
func (n *Navigator) ForwardGeocode(ctx context.Context, address string) *model.Coordinate {
	c, err := n.geo.Forward(ctx, address)
	if err != nil {
		n.log.Debug("forward geocode miss", zap.String("address", address), zap.Error(err))
		return nil
	}
	return &c
}

// ForwardGeocodeAsync delivers ForwardGeocode's result on a channel.
func (n *Navigator) ForwardGeocodeAsync(ctx context.Context, address string) <-chan *model.Coordinate {
	out := make(chan *model.Coordinate, 1)
	go func() { out <- n.ForwardGeocode(ctx, address) }()
	return out
}

// ReverseGeocode resolves a coordinate to a complete structured address; nil otherwise.
func (n *Navigator) ReverseGeocode(ctx context.Context, c model.Coordinate) *model.PostalAddress {
	pa, err := n.geo.Reverse(ctx, c)
	if err != nil {
		n.log.Debug("reverse geocode miss", zap.Error(err))
		return nil
	}
	return &pa
}

// ReverseGeocodeAsync delivers ReverseGeocode's result on a channel.
func (n *Navigator) ReverseGeocodeAsync(ctx context.Context, c model.Coordinate) <-chan *model.PostalAddress {
	out := make(chan *model.PostalAddress, 1)
	go func() { out <- n.ReverseGeocode(ctx, c) }()
	return out
}

// AddBookmark geocodes pa and saves a bookmark for the patient visible to s.
// Nothing is saved when the address does not resolve.
func (n *Navigator) AddBookmark(ctx context.Context, s *session.Session, name string, pa model.PostalAddress) (model.Bookmark, bool) {
	owner, err := Owner(s)
	if err != nil {
		n.fail("add bookmark", err)
		return model.Bookmark{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" || !pa.Complete() {
		n.fail("add bookmark", fmt.Errorf("name and every address field are required: %w", errs.ErrValidation))
		return model.Bookmark{}, false
	}
	addr := pa.Concat()
	c := n.ForwardGeocode(ctx, addr)
	if c == nil {
		n.invalidAddress()
		return model.Bookmark{}, false
	}
	b, err := n.store.CreateBookmark(ctx, model.Bookmark{
		Patient:    owner,
		Name:       name,
		Address:    addr,
		Coordinate: c,
	})
	if err != nil {
		n.fail("add bookmark", err)
		return model.Bookmark{}, false
	}
	n.upsert(b)
	n.notify.Notify(notice.Message{Level: notice.Success, Title: MsgBookmarkSaved})
	return b, true
}

// EditBookmark applies a change. A new address is geocoded again; a name-only change is not.
func (n *Navigator) EditBookmark(ctx context.Context, id uuid.UUID, name *string, pa *model.PostalAddress) (model.Bookmark, bool) {
	var ch model.BookmarkChange
	if name != nil {
		v := strings.TrimSpace(*name)
		if v == "" {
			n.fail("edit bookmark", fmt.Errorf("empty name: %w", errs.ErrValidation))
			return model.Bookmark{}, false
		}
		ch.Name = &v
	}
	if pa != nil {
		if !pa.Complete() {
			n.fail("edit bookmark", fmt.Errorf("every address field is required: %w", errs.ErrValidation))
			return model.Bookmark{}, false
		}
		addr := pa.Concat()
		c := n.ForwardGeocode(ctx, addr)
		if c == nil {
			n.invalidAddress()
			return model.Bookmark{}, false
		}
		ch.Address, ch.Coordinate = &addr, c
	}
	if ch.Name == nil && ch.Address == nil {
		return model.Bookmark{}, false
	}
	b, err := n.store.UpdateBookmark(ctx, id, ch)
	if err != nil {
		n.fail("edit bookmark", err)
		return model.Bookmark{}, false
	}
	n.upsert(b)
	n.notify.Notify(notice.Message{Level: notice.Success, Title: MsgBookmarkSaved})
	return b, true
}

// DeleteBookmark removes a bookmark and drops it from the snapshot.
func (n *Navigator) DeleteBookmark(ctx context.Context, id uuid.UUID) bool {
	if err := n.store.DeleteBookmark(ctx, id); err != nil {
		n.fail("delete bookmark", err)
		return false
	}
	n.mu.Lock()
	out := n.bookmarks[:0:0]
	for _, b := range n.bookmarks {
		if b.ID != id {
			out = append(out, b)
		}
	}
	n.bookmarks = out
	n.mu.Unlock()
	n.notify.Notify(notice.Message{Level: notice.Success, Title: MsgBookmarkDeleted})
	return true
}

func (n *Navigator) upsert(b model.Bookmark) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.bookmarks {
		if n.bookmarks[i].ID == b.ID {
			n.bookmarks[i] = b
			return
		}
	}
	n.bookmarks = append(n.bookmarks, b)
}

func (n *Navigator) invalidAddress() {
	n.notify.Notify(notice.Message{Level: notice.Danger, Title: MsgInvalidAddress, Duration: InvalidAddressDuration})
}

func (n *Navigator) fail(op string, err error) {
	n.log.Warn(op+" failed", zap.Error(err))
	title := err.Error()
	switch {
	case errors.Is(err, errs.ErrSetupRequired):
		title = MsgSetupRequired
	case errors.Is(err, errs.ErrNoSession):
		title = "Not signed in"
	case errors.Is(err, errs.ErrQueryTypeMismatch):
		title = "Bookmarks could not be loaded"
	case errors.Is(err, errs.ErrForbidden):
		title = "Not allowed"
	case errors.Is(err, errs.ErrNotFound):
		title = "Bookmark not found"
	}
	n.notify.Notify(notice.Message{Level: notice.Danger, Title: title})
}

func cloneBookmarks(in []model.Bookmark) []model.Bookmark {
	if in == nil {
		return nil
	}
	out := make([]model.Bookmark, len(in))
	copy(out, in)
	return out
}
