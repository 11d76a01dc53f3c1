// Package worker reacts to project change events: it snapshots project
// history and exports projects to Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bil/internal/amqp"
	"bil/internal/core"
	"bil/internal/history"
	"bil/internal/log"
	"bil/internal/services"
	"bil/internal/sheets"
)

// Ledger is the part of the ledger service the worker reads from.
type Ledger interface {
	ListProjects(ctx context.Context, includeDeleted bool) ([]core.Project, error)
	GetProject(ctx context.Context, id int) (core.ProjectDetail, error)
	Snapshot(ctx context.Context, projectID int, message string) (history.Snapshot, bool, error)
}

var _ Ledger = (*services.LedgerService)(nil)

// SyncWorker brings history and the spreadsheet export in line with the ledger.
type SyncWorker struct {
	ledger   Ledger
	exporter sheets.ProjectExporter
	logger   *log.Logger
}

// NewSyncWorker creates a worker. exporter may be nil to disable exports.
func NewSyncWorker(ledger Ledger, exporter sheets.ProjectExporter, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		ledger:   ledger,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleMessage processes a single project change from AMQP. An error
// requeues the message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.ProjectChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing project change",
		log.FieldProjectID, msg.ProjectID,
		log.FieldOperation, msg.Operation,
		log.FieldMessageID, msg.MessageID)

	if err := w.syncProject(ctx, msg.ProjectID, msg.Operation); err != nil {
		return fmt.Errorf("project %d: %w", msg.ProjectID, err)
	}
	return nil
}

// syncProject snapshots and exports one project. Deleted or missing projects
// are skipped.
func (w *SyncWorker) syncProject(ctx context.Context, projectID int, message string) error {
	snap, created, err := w.ledger.Snapshot(ctx, projectID, message)
	switch {
	case errors.Is(err, services.ErrHistoryDisabled):
	case errors.Is(err, core.ErrNotFound):
		w.logger.DebugContext(ctx, "Skipping project that is not live", log.FieldProjectID, projectID)
		return nil
	case err != nil:
		return fmt.Errorf("snapshot: %w", err)
	case created:
		w.logger.InfoContext(ctx, "Snapshot recorded",
			log.FieldProjectID, projectID,
			log.FieldSnapshotID, snap.ID)
	}

	if w.exporter == nil {
		return nil
	}
	project, err := w.ledger.GetProject(ctx, projectID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.DebugContext(ctx, "Skipping export of project that is not live", log.FieldProjectID, projectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if err := w.exporter.ExportProject(ctx, project); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// SweepAll snapshots and exports every live project. It keeps going past
// failures and reports them together.
func (w *SyncWorker) SweepAll(ctx context.Context) error {
	projects, err := w.ledger.ListProjects(ctx, false)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	var errs []error
	for _, p := range projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.syncProject(ctx, p.ID, "periodic snapshot"); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync project",
				log.FieldProjectID, p.ID,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("project %d: %w", p.ID, err))
		}
	}

	w.logger.InfoContext(ctx, "Sweep completed",
		"projects", len(projects),
		"errors", len(errs))
	return errors.Join(errs...)
}

// RunSweeps sweeps once at startup and then every interval until ctx is done.
// Sweep failures are logged, not returned.
func (w *SyncWorker) RunSweeps(ctx context.Context, interval time.Duration) error {
	if err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Startup sweep failed", log.FieldError, err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic sweep failed", log.FieldError, err)
			}
		}
	}
}
