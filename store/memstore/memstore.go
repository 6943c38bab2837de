// Package memstore keeps templates, uploaded rows and employees in memory.
// Records are deep-copied on the way in and out, so callers never share
// state with the store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/javajack/xlform"
	"github.com/tiendc/go-deepcopy"
)

// Store implements xlform.TemplateStore, xlform.RowStore and
// xlform.EmployeeStore.
type Store struct {
	mu        sync.RWMutex
	templates []*xlform.TemplateModel // creation order
	rows      []*xlform.UploadedRow
	employees []*xlform.Employee
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

func clone[T any](src *T) (*T, error) {
	var dst T
	if err := deepcopy.Copy(&dst, src); err != nil {
		return nil, fmt.Errorf("copy %T: %w", src, err)
	}
	return &dst, nil
}

func cloneAll[T any](src []*T) ([]*T, error) {
	out := make([]*T, 0, len(src))
	for _, s := range src {
		c, err := clone(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateTemplate implements xlform.TemplateStore.
func (s *Store) CreateTemplate(_ context.Context, t *xlform.TemplateModel) error {
	c, err := clone(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.ID == t.ID || existing.TemplateName == t.TemplateName {
			return fmt.Errorf("%w: template %q", xlform.ErrDuplicate, t.TemplateName)
		}
	}
	s.templates = append(s.templates, c)
	return nil
}

// FindTemplate implements xlform.TemplateStore.
func (s *Store) FindTemplate(_ context.Context, id string) (*xlform.TemplateModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.ID == id {
			return clone(t)
		}
	}
	return nil, fmt.Errorf("%w: %s", xlform.ErrTemplateNotFound, id)
}

// FindActiveTemplate implements xlform.TemplateStore.
func (s *Store) FindActiveTemplate(_ context.Context, name string) (*xlform.TemplateModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *xlform.TemplateModel
	for _, t := range s.templates {
		if !t.IsActive {
			continue
		}
		if t.TemplateName == name {
			return clone(t)
		}
		if latest == nil || !t.CreatedAt.Before(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no active template", xlform.ErrTemplateNotFound)
	}
	return clone(latest)
}

// ListActiveTemplates implements xlform.TemplateStore.
func (s *Store) ListActiveTemplates(_ context.Context) ([]*xlform.TemplateModel, error) {
	s.mu.RLock()
	var active []*xlform.TemplateModel
	for i := len(s.templates) - 1; i >= 0; i-- {
		if s.templates[i].IsActive {
			active = append(active, s.templates[i])
		}
	}
	out, err := cloneAll(active)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SoftDeleteTemplate implements xlform.TemplateStore.
func (s *Store) SoftDeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.ID == id {
			t.IsActive = false
			return nil
		}
	}
	return fmt.Errorf("%w: %s", xlform.ErrTemplateNotFound, id)
}

// CreateRow implements xlform.RowStore.
func (s *Store) CreateRow(_ context.Context, row *xlform.UploadedRow) error {
	c, err := clone(row)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.ID == row.ID ||
			(existing.UploadBatchID == row.UploadBatchID && existing.RowNumber == row.RowNumber) {
			return fmt.Errorf("%w: row %d of batch %s", xlform.ErrDuplicate, row.RowNumber, row.UploadBatchID)
		}
	}
	s.rows = append(s.rows, c)
	return nil
}

// FindRowsByBatch implements xlform.RowStore.
func (s *Store) FindRowsByBatch(_ context.Context, batchID string) ([]*xlform.UploadedRow, error) {
	out, err := s.filterRows(func(r *xlform.UploadedRow) bool { return r.UploadBatchID == batchID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

// FindRowsByEmployee implements xlform.RowStore.
func (s *Store) FindRowsByEmployee(_ context.Context, employeeID string) ([]*xlform.UploadedRow, error) {
	out, err := s.filterRows(func(r *xlform.UploadedRow) bool { return r.EmployeeID == employeeID })
	if err != nil {
		return nil, err
	}
	// Newest first; insertion order breaks ties.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) filterRows(keep func(*xlform.UploadedRow) bool) ([]*xlform.UploadedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*xlform.UploadedRow
	for _, r := range s.rows {
		if keep(r) {
			matched = append(matched, r)
		}
	}
	return cloneAll(matched)
}

// BatchSummaries implements xlform.RowStore.
func (s *Store) BatchSummaries(_ context.Context, limit int) ([]xlform.BatchSummary, error) {
	s.mu.RLock()
	index := make(map[string]int)
	var batches []xlform.BatchSummary
	for _, r := range s.rows {
		i, ok := index[r.UploadBatchID]
		if !ok {
			i = len(batches)
			index[r.UploadBatchID] = i
			batches = append(batches, xlform.BatchSummary{
				UploadBatchID: r.UploadBatchID,
				TemplateID:    r.TemplateID,
				UploadedBy:    r.UploadedBy,
				UploadedAt:    r.CreatedAt,
			})
		}
		b := &batches[i]
		if r.CreatedAt.Before(b.UploadedAt) {
			b.UploadedAt = r.CreatedAt
		}
		b.TotalRecords++
		countStatus(r.Status, &b.ValidatedCount, &b.PendingCount, &b.ErrorCount)
	}
	s.mu.RUnlock()

	sort.SliceStable(batches, func(i, j int) bool { return batches[i].UploadedAt.After(batches[j].UploadedAt) })
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

// Summary implements xlform.RowStore.
func (s *Store) Summary(_ context.Context) (xlform.DataSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum xlform.DataSummary
	batches := make(map[string]bool)
	for _, r := range s.rows {
		sum.TotalRecords++
		batches[r.UploadBatchID] = true
		countStatus(r.Status, &sum.ValidatedCount, &sum.PendingCount, &sum.ErrorCount)
	}
	sum.TotalBatches = len(batches)
	return sum, nil
}

func countStatus(st xlform.RowStatus, validated, pending, errs *int) {
	switch st {
	case xlform.StatusValidated:
		*validated++
	case xlform.StatusPending:
		*pending++
	case xlform.StatusError:
		*errs++
	}
}

// CreateEmployee implements xlform.EmployeeStore.
func (s *Store) CreateEmployee(_ context.Context, e *xlform.Employee) error {
	c, err := clone(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.employees {
		switch {
		case existing.EmployeeID == e.EmployeeID:
			return fmt.Errorf("%w: employee id %s", xlform.ErrDuplicate, e.EmployeeID)
		case strings.EqualFold(existing.Email, e.Email):
			return fmt.Errorf("%w: email %s", xlform.ErrDuplicate, e.Email)
		}
	}
	s.employees = append(s.employees, c)
	return nil
}

// FindActiveEmployee implements xlform.EmployeeDirectory.
func (s *Store) FindActiveEmployee(_ context.Context, employeeID string) (*xlform.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.EmployeeID == employeeID && e.IsActive {
			return clone(e)
		}
	}
	return nil, fmt.Errorf("%w: %s", xlform.ErrEmployeeNotFound, employeeID)
}

// ListActiveEmployees implements xlform.EmployeeStore.
func (s *Store) ListActiveEmployees(_ context.Context) ([]*xlform.Employee, error) {
	return s.filterEmployees(func(e *xlform.Employee) bool { return e.IsActive })
}

// ListByManager implements xlform.EmployeeStore.
func (s *Store) ListByManager(_ context.Context, managerID string) ([]*xlform.Employee, error) {
	return s.filterEmployees(func(e *xlform.Employee) bool { return e.IsActive && e.ManagerID == managerID })
}

func (s *Store) filterEmployees(keep func(*xlform.Employee) bool) ([]*xlform.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*xlform.Employee
	for _, e := range s.employees {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	out, err := cloneAll(matched)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

// DeactivateEmployee implements xlform.EmployeeStore.
func (s *Store) DeactivateEmployee(_ context.Context, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.employees {
		if e.EmployeeID == employeeID && e.IsActive {
			e.IsActive = false
			return nil
		}
	}
	return fmt.Errorf("%w: %s", xlform.ErrEmployeeNotFound, employeeID)
}
