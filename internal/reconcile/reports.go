package reconcile

import (
	"context"
	"errors"

	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

// DefaultKeepReports is how many past reports are retained.
const DefaultKeepReports = 20

var (
	reportsPath = []string{"report", "runs"}
	lastPath    = []string{"report", "last"}
)

// ErrNoReport is returned when no pass has been recorded yet.
var ErrNoReport = errors.New("no reconciliation report recorded")

// Reports persists reconciliation reports in a Storage.
type Reports struct {
	store *storage.Storage
	keep  int
}

// NewReports keeps up to keep reports in store.
func NewReports(store *storage.Storage, keep int) *Reports {
	if keep <= 0 {
		keep = DefaultKeepReports
	}
	return &Reports{store: store, keep: keep}
}

// Save records report as the latest and prunes old ones.
func (r *Reports) Save(ctx context.Context, report *types.Report) error {
	if err := r.store.Put(ctx, append(append([]string{}, reportsPath...), report.ID), report); err != nil {
		return err
	}
	if err := r.store.Put(ctx, lastPath, report); err != nil {
		return err
	}
	return r.store.Prune(ctx, reportsPath, r.keep)
}

// Last returns the most recent report.
func (r *Reports) Last(ctx context.Context) (*types.Report, error) {
	var report types.Report
	if err := r.store.Get(ctx, lastPath, &report); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoReport
		}
		return nil, err
	}
	return &report, nil
}

// Get returns the report with id.
func (r *Reports) Get(ctx context.Context, id string) (*types.Report, error) {
	var report types.Report
	if err := r.store.Get(ctx, append(append([]string{}, reportsPath...), id), &report); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoReport
		}
		return nil, err
	}
	return &report, nil
}

// IDs lists stored report ids, oldest first.
func (r *Reports) IDs(ctx context.Context) ([]string, error) {
	return r.store.List(ctx, reportsPath)
}
