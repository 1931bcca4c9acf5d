// Package roster implements the admin user-management workflow: a
// paginated, mutation-driven view over the admin API with explicit cache
// invalidation. Every state-changing operation names what it invalidates:
// any successful create or delete drops all cached pages, because the total
// count and page boundaries shift.
package roster

import (
	"context"
	"errors"
	"sync"

	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

var (
	// ErrSelfDelete rejects deletion of the signed-in user's own account.
	// The guard is client-side and unconditional: the DELETE is never
	// issued, whether or not the service would also refuse it.
	ErrSelfDelete = errors.New("cannot delete the signed-in user")

	// ErrDeleteInFlight rejects a delete while another is still pending.
	// Destructive mutations are serialized to avoid racing invalidations.
	ErrDeleteInFlight = errors.New("another delete is in flight")
)

// AdminAPI is the slice of the service client the roster composes.
type AdminAPI interface {
	ListUsers(ctx context.Context, page, size int) (*kbsdk.UserPage, error)
	CreateUser(ctx context.Context, req kbsdk.CreateUserRequest) (*kbsdk.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// CurrentUser supplies the signed-in user for the self-delete guard.
// Typically (*session.Manager).CurrentUser.
type CurrentUser func() *kbsdk.User

// Roster maintains a 1-based page cursor with a fixed page size over the
// admin user list, plus a per-page cache that mutations invalidate
// wholesale.
type Roster struct {
	api     AdminAPI
	current CurrentUser
	size    int

	mu       sync.Mutex
	page     int
	total    int
	known    bool // total has been observed at least once
	cache    map[int]*kbsdk.UserPage
	deleting bool
}

// New creates a roster positioned on page 1.
func New(api AdminAPI, current CurrentUser, pageSize int) *Roster {
	if pageSize < 1 {
		pageSize = 10
	}
	return &Roster{
		api:     api,
		current: current,
		size:    pageSize,
		page:    1,
		cache:   make(map[int]*kbsdk.UserPage),
	}
}

// Page returns the current 1-based cursor.
func (r *Roster) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// PageSize returns the fixed page size.
func (r *Roster) PageSize() int {
	return r.size
}

// LastPage returns the highest valid page for the last observed total,
// never below 1.
func (r *Roster) LastPage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPageLocked()
}

func (r *Roster) lastPageLocked() int {
	last := (r.total + r.size - 1) / r.size
	if last < 1 {
		last = 1
	}
	return last
}

// SetPage moves the cursor. Requests below 1 or beyond the last known page
// are no-ops: the cursor is left unchanged and false is returned, so the
// UI cannot navigate out of range. Before the first fetch only page 1 is
// reachable.
func (r *Roster) SetPage(page int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if page < 1 || page > r.lastPageLocked() {
		return false
	}
	r.page = page
	return true
}

// Fetch returns the current page, from cache when present, otherwise from
// the service. A fetch refreshes the observed total, which widens or
// narrows the reachable page range for subsequent SetPage calls.
func (r *Roster) Fetch(ctx context.Context) (*kbsdk.UserPage, error) {
	r.mu.Lock()
	page := r.page
	if cached, ok := r.cache[page]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	fetched, err := r.api.ListUsers(ctx, page, r.size)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.total = fetched.Total
	r.known = true
	r.cache[page] = fetched
	r.mu.Unlock()
	return fetched, nil
}

// Create creates a user through the admin surface. On success every cached
// page is invalidated and the cursor resets to page 1 so the new record is
// visible on the next fetch.
func (r *Roster) Create(ctx context.Context, req kbsdk.CreateUserRequest) (*kbsdk.User, error) {
	created, err := r.api.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.invalidateLocked()
	r.page = 1
	r.mu.Unlock()
	return created, nil
}

// Delete deletes a user by id. The signed-in user's own id is rejected
// before any network call. At most one delete is in flight at a time;
// concurrent attempts fail with ErrDeleteInFlight and the triggers
// re-enable once the pending delete settles, success or not. A successful
// delete invalidates every cached page.
func (r *Roster) Delete(ctx context.Context, id string) error {
	if self := r.current(); self != nil && self.ID == id {
		return ErrSelfDelete
	}

	r.mu.Lock()
	if r.deleting {
		r.mu.Unlock()
		return ErrDeleteInFlight
	}
	r.deleting = true
	r.mu.Unlock()

	err := r.api.DeleteUser(ctx, id)

	r.mu.Lock()
	r.deleting = false
	if err == nil {
		r.invalidateLocked()
	}
	r.mu.Unlock()
	return err
}

// DeleteInFlight reports whether a delete is pending; the UI disables all
// delete triggers while it is.
func (r *Roster) DeleteInFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleting
}

// Invalidate drops every cached page, forcing the next Fetch back to the
// service. The cursor is untouched.
func (r *Roster) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *Roster) invalidateLocked() {
	r.cache = make(map[int]*kbsdk.UserPage)
}
