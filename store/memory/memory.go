// Package memory provides in-memory implementations of the engine's
// persistence and directory interfaces, for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu         sync.RWMutex
	requests   map[vacation.RequestID]vacation.Request
	allowances map[allowanceKey]vacation.AllowanceRecord
}

type allowanceKey struct {
	EmployeeID vacation.EmployeeID
	Year       int
}

func NewStore() *Store {
	return &Store{
		requests:   make(map[vacation.RequestID]vacation.Request),
		allowances: make(map[allowanceKey]vacation.AllowanceRecord),
	}
}

func (s *Store) InsertRequest(_ context.Context, req *vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(req)
}

func (s *Store) UpdateRequest(_ context.Context, req *vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(req)
}

func (s *Store) GetRequest(_ context.Context, id vacation.RequestID) (*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Store) RequestsByEmployee(_ context.Context, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byEmployeeLocked(employeeID, statuses), nil
}

func (s *Store) OverlappingRequests(_ context.Context, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlappingLocked(employeeID, start, end, statuses, exclude), nil
}

func (s *Store) ApprovedRequestsForYear(_ context.Context, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvedForYearLocked(employeeID, year), nil
}

func (s *Store) ApprovedRequestsInRange(_ context.Context, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvedInRangeLocked(employeeIDs, start, end), nil
}

func (s *Store) GetAllowance(_ context.Context, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowanceLocked(employeeID, year)
}

func (s *Store) PutAllowance(_ context.Context, record *vacation.AllowanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putAllowanceLocked(record)
	return nil
}

// =============================================================================
// LOCKED OPERATIONS - Shared by direct calls and the transactional view
// =============================================================================

func (s *Store) insertLocked(req *vacation.Request) error {
	if _, exists := s.requests[req.ID]; exists {
		return vacation.ErrInvalidStateTransition
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *Store) updateLocked(req *vacation.Request) error {
	if _, exists := s.requests[req.ID]; !exists {
		return vacation.ErrNotFound
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *Store) getLocked(id vacation.RequestID) (*vacation.Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, vacation.ErrNotFound
	}
	copied := req
	return &copied, nil
}

func (s *Store) byEmployeeLocked(employeeID vacation.EmployeeID, statuses []vacation.Status) []*vacation.Request {
	var result []*vacation.Request
	for id := range s.requests {
		req := s.requests[id]
		if req.EmployeeID != employeeID || !statusMatches(req.Status, statuses) {
			continue
		}
		copied := req
		result = append(result, &copied)
	}
	sortByStart(result)
	return result
}

func (s *Store) overlappingLocked(employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) []*vacation.Request {
	var result []*vacation.Request
	for _, req := range s.byEmployeeLocked(employeeID, statuses) {
		if req.ID == exclude {
			continue
		}
		if req.Overlaps(start, end) {
			result = append(result, req)
		}
	}
	return result
}

func (s *Store) approvedForYearLocked(employeeID vacation.EmployeeID, year int) []*vacation.Request {
	var result []*vacation.Request
	for _, req := range s.byEmployeeLocked(employeeID, []vacation.Status{vacation.StatusApproved}) {
		if req.Year() == year {
			result = append(result, req)
		}
	}
	return result
}

func (s *Store) approvedInRangeLocked(employeeIDs []vacation.EmployeeID, start, end calendar.Date) map[vacation.EmployeeID][]*vacation.Request {
	result := make(map[vacation.EmployeeID][]*vacation.Request, len(employeeIDs))
	for _, employeeID := range employeeIDs {
		result[employeeID] = s.overlappingLocked(employeeID, start, end, []vacation.Status{vacation.StatusApproved}, "")
	}
	return result
}

func (s *Store) allowanceLocked(employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	record, ok := s.allowances[allowanceKey{EmployeeID: employeeID, Year: year}]
	if !ok {
		return nil, vacation.ErrNotFound
	}
	copied := record
	return &copied, nil
}

func (s *Store) putAllowanceLocked(record *vacation.AllowanceRecord) {
	s.allowances[allowanceKey{EmployeeID: record.EmployeeID, Year: record.Year}] = *record
}

func statusMatches(status vacation.Status, statuses []vacation.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortByStart(reqs []*vacation.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].Start.Equal(reqs[j].Start) {
			return reqs[i].Start.Before(reqs[j].Start)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback under a single lock
// =============================================================================

// WithTx serializes the function under the store lock and rolls the state
// back on error. This makes the memory store's transactions fully
// serialized, which is exactly the per-employee/per-team exclusion the
// lifecycle needs.
func (s *Store) WithTx(_ context.Context, fn func(vacation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(&txView{parent: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	requests   map[vacation.RequestID]vacation.Request
	allowances map[allowanceKey]vacation.AllowanceRecord
}

func (s *Store) snapshotLocked() storeSnapshot {
	requests := make(map[vacation.RequestID]vacation.Request, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	allowances := make(map[allowanceKey]vacation.AllowanceRecord, len(s.allowances))
	for k, v := range s.allowances {
		allowances[k] = v
	}
	return storeSnapshot{requests: requests, allowances: allowances}
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.requests = snap.requests
	s.allowances = snap.allowances
}

// txView operates on the parent without re-locking; the parent lock is
// held for the whole transaction.
type txView struct {
	parent *Store
}

func (tv *txView) InsertRequest(_ context.Context, req *vacation.Request) error {
	return tv.parent.insertLocked(req)
}

func (tv *txView) UpdateRequest(_ context.Context, req *vacation.Request) error {
	return tv.parent.updateLocked(req)
}

func (tv *txView) GetRequest(_ context.Context, id vacation.RequestID) (*vacation.Request, error) {
	return tv.parent.getLocked(id)
}

func (tv *txView) RequestsByEmployee(_ context.Context, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	return tv.parent.byEmployeeLocked(employeeID, statuses), nil
}

func (tv *txView) OverlappingRequests(_ context.Context, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	return tv.parent.overlappingLocked(employeeID, start, end, statuses, exclude), nil
}

func (tv *txView) ApprovedRequestsForYear(_ context.Context, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	return tv.parent.approvedForYearLocked(employeeID, year), nil
}

func (tv *txView) ApprovedRequestsInRange(_ context.Context, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	return tv.parent.approvedInRangeLocked(employeeIDs, start, end), nil
}

func (tv *txView) GetAllowance(_ context.Context, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	return tv.parent.allowanceLocked(employeeID, year)
}

func (tv *txView) PutAllowance(_ context.Context, record *vacation.AllowanceRecord) error {
	tv.parent.putAllowanceLocked(record)
	return nil
}

// =============================================================================
// STATIC DIRECTORY
// =============================================================================

// Directory is a fixed in-memory vacation.Directory for tests and dev.
type Directory struct {
	mu    sync.RWMutex
	roles map[vacation.EmployeeID]vacation.Role
	teams map[vacation.TeamID]*vacation.TeamInfo
}

func NewDirectory() *Directory {
	return &Directory{
		roles: make(map[vacation.EmployeeID]vacation.Role),
		teams: make(map[vacation.TeamID]*vacation.TeamInfo),
	}
}

// AddEmployee registers an employee with a role.
func (d *Directory) AddEmployee(id vacation.EmployeeID, role vacation.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[id] = role
}

// AddTeam registers a team with its members. Members need not be
// registered employees.
func (d *Directory) AddTeam(id vacation.TeamID, name string, members ...vacation.EmployeeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teams[id] = &vacation.TeamInfo{ID: id, Name: name, Members: members}
}

func (d *Directory) RoleOf(_ context.Context, employeeID vacation.EmployeeID) (vacation.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	role, ok := d.roles[employeeID]
	if !ok {
		return "", vacation.ErrNotFound
	}
	return role, nil
}

func (d *Directory) TeamOf(_ context.Context, employeeID vacation.EmployeeID) (*vacation.TeamInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, team := range d.teams {
		for _, member := range team.Members {
			if member == employeeID {
				copied := *team
				return &copied, nil
			}
		}
	}
	return nil, vacation.ErrNotFound
}

// Interface checks
var (
	_ vacation.TxStore   = (*Store)(nil)
	_ vacation.Directory = (*Directory)(nil)
)
