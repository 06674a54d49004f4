package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/dshills/scip-indexer/internal/indexer"
	"github.com/dshills/scip-indexer/internal/logging"
)

// EventSink records indexer lifecycle events as run history. It implements
// logging.Logger. Events without a run ID are ignored.
type EventSink struct {
	store Storage
	// onError reports persistence failures; Log has no error return.
	onError func(e logging.Event, err error)
}

// NewEventSink creates a sink writing to store.
func NewEventSink(store Storage) *EventSink {
	return &EventSink{
		store: store,
		onError: func(e logging.Event, err error) {
			log.Printf("Failed to record %s event for run %s: %v", e.Action, e.RunID, err)
		},
	}
}

// Log implements logging.Logger.
func (s *EventSink) Log(e logging.Event) {
	if e.RunID == "" {
		return
	}
	if err := s.record(context.Background(), e); err != nil && s.onError != nil {
		s.onError(e, err)
	}
}

func (s *EventSink) record(ctx context.Context, e logging.Event) (err error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	switch e.Action {
	case indexer.ActionStart:
		err = tx.StartRun(ctx, &Run{
			ID:          e.RunID,
			ProjectRoot: e.ProjectRoot,
			Status:      StatusRunning,
			Incremental: e.Incremental != nil && *e.Incremental,
			StartedAt:   e.Time,
		})
	case indexer.ActionSkipped:
		err = tx.StartRun(ctx, &Run{
			ID:          e.RunID,
			ProjectRoot: e.ProjectRoot,
			Status:      StatusSkipped,
			Incremental: true,
			StartedAt:   e.Time,
			FinishedAt:  e.Time,
		})
	}
	if err != nil {
		return err
	}

	if err = tx.AppendEvent(ctx, &Event{
		RunID:   e.RunID,
		Time:    e.Time,
		Source:  e.Source,
		Action:  e.Action,
		Level:   e.Level,
		Adapter: e.Adapter,
		Message: e.Message,
		Path:    e.Path,
	}); err != nil {
		return err
	}

	switch e.Action {
	case indexer.ActionComplete:
		err = tx.FinishRun(ctx, e.RunID, RunResult{
			Status:     StatusComplete,
			FinishedAt: e.Time,
			IndexPath:  e.Path,
			Checksum:   e.Checksum,
		})
	case indexer.ActionFailed:
		err = tx.FinishRun(ctx, e.RunID, RunResult{
			Status:     StatusFailed,
			FinishedAt: e.Time,
			Message:    e.Message,
		})
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
