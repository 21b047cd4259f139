package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// NopStore discards run history. Used when auditing is disabled and in tests.
type NopStore struct{}

func NewNop() *NopStore { return &NopStore{} }

func (*NopStore) CreateRun(_ context.Context, filename string) (*IntakeRun, error) {
	return &IntakeRun{ID: uuid.New().String(), Filename: filename, Status: RunStatusSubmitted}, nil
}

func (*NopStore) UpdateStatus(context.Context, string, RunStatus) error { return nil }
func (*NopStore) SetJobID(context.Context, string, string) error        { return nil }
func (*NopStore) MarkFallback(context.Context, string) error            { return nil }
func (*NopStore) SetError(context.Context, string, RunStatus, string) error {
	return nil
}
func (*NopStore) SetRegistered(context.Context, string, string) error { return nil }

func (*NopStore) GetRun(_ context.Context, runID string) (*IntakeRun, error) {
	return nil, eris.Errorf("nop store: run %s not found", runID)
}

func (*NopStore) ListRuns(context.Context, int) ([]IntakeRun, error) { return nil, nil }
func (*NopStore) Migrate(context.Context) error                      { return nil }
func (*NopStore) Close() error                                       { return nil }
