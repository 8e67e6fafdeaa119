// Package store provides RequestStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campusgate/gatepass-engine/gatepass"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements gatepass.RequestStore with a mutex-guarded map. The
// conditional-write checks run under the same lock as the write, which gives
// the same guarantee the SQL store gets from its conditional UPDATE.
type Memory struct {
	mu       sync.RWMutex
	requests map[gatepass.RequestID]*gatepass.LeaveRequest
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		requests: make(map[gatepass.RequestID]*gatepass.LeaveRequest),
		now:      time.Now,
	}
}

func (m *Memory) Insert(_ context.Context, r *gatepass.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	stored := r.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.requests[r.ID] = stored

	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (m *Memory) Get(_ context.Context, id gatepass.RequestID) (*gatepass.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, gatepass.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) List(_ context.Context, f gatepass.RequestFilter) ([]*gatepass.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*gatepass.LeaveRequest
	for _, r := range m.requests {
		if !matches(r, f) {
			continue
		}
		out = append(out, r.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if f.AllowedOnly {
			return allowedAt(out[i]).After(allowedAt(out[j]))
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CountPersonal(_ context.Context, facultyID gatepass.UserID, yearMonth string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.requests {
		if r.FacultyID == facultyID && r.Purpose == gatepass.PurposePersonal && strings.HasPrefix(r.Date, yearMonth) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id gatepass.RequestID, from gatepass.Status, upd gatepass.StatusUpdate) (*gatepass.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, gatepass.ErrNotFound
	}
	if r.Status != from {
		return nil, gatepass.ErrConcurrentModification
	}

	r.Status = upd.Status
	r.StatusDetail = upd.StatusDetail
	r.HODStatus = upd.HODStatus
	r.RegistrarStatus = upd.RegistrarStatus
	r.UpdatedAt = m.now().UTC()
	return r.Clone(), nil
}

func (m *Memory) MarkAllowed(_ context.Context, id gatepass.RequestID, mark gatepass.GateMark, upd *gatepass.StatusUpdate) (*gatepass.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, gatepass.ErrNotFound
	}
	if r.Allowed {
		return nil, gatepass.ErrConcurrentModification
	}
	if upd != nil && r.Status != gatepass.StatusPending {
		return nil, gatepass.ErrConcurrentModification
	}

	r.Allowed = true
	by, at := mark.By, mark.At
	r.AllowedBy = &by
	r.AllowedAt = &at
	if upd != nil {
		r.Status = upd.Status
		r.StatusDetail = upd.StatusDetail
		r.HODStatus = upd.HODStatus
		r.RegistrarStatus = upd.RegistrarStatus
	}
	r.UpdatedAt = m.now().UTC()
	return r.Clone(), nil
}

func (m *Memory) MarkReturned(_ context.Context, id gatepass.RequestID, mark gatepass.GateMark) (*gatepass.LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, gatepass.ErrNotFound
	}
	if !r.Allowed || r.Returned {
		return nil, gatepass.ErrConcurrentModification
	}

	r.Returned = true
	by, at := mark.By, mark.At
	r.ReturnedBy = &by
	r.ReturnedAt = &at
	r.UpdatedAt = m.now().UTC()
	return r.Clone(), nil
}

// =============================================================================
// FILTER MATCHING
// =============================================================================

func matches(r *gatepass.LeaveRequest, f gatepass.RequestFilter) bool {
	if f.AllowedOnly && !r.Allowed {
		return false
	}
	if f.Date != "" && r.Date != f.Date {
		return false
	}
	if len(f.FacultyIDs) > 0 && !containsID(f.FacultyIDs, r.FacultyID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	return true
}

func containsID(ids []gatepass.UserID, id gatepass.UserID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsStatus(sts []gatepass.Status, s gatepass.Status) bool {
	for _, v := range sts {
		if v == s {
			return true
		}
	}
	return false
}

func allowedAt(r *gatepass.LeaveRequest) time.Time {
	if r.AllowedAt == nil {
		return time.Time{}
	}
	return *r.AllowedAt
}

// =============================================================================
// MEMORY DIRECTORY - Identity directory for tests/dev
// =============================================================================

// MemoryDirectory implements gatepass.Directory over a fixed user set.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[gatepass.UserID]*gatepass.User
}

func NewMemoryDirectory(users ...*gatepass.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[gatepass.UserID]*gatepass.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Add(u *gatepass.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) User(_ context.Context, id gatepass.UserID) (*gatepass.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, gatepass.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (d *MemoryDirectory) UsersByDepartment(_ context.Context, department string) ([]*gatepass.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*gatepass.User
	for _, u := range d.users {
		if u.Department == department {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) EscalatedUsers(_ context.Context) ([]*gatepass.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*gatepass.User
	for _, u := range d.users {
		if u.Escalated() {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}
