package sheets

import (
	"context"

	"bil/internal/core"
)

// Ports for outbound adapters.
type (
	// ProjectExporter writes a full copy of a project somewhere outside the ledger.
	ProjectExporter interface {
		ExportProject(ctx context.Context, project core.ProjectDetail) error
	}
)
