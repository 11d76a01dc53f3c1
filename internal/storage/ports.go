// Package storage defines the persistence ports of the ledger. Backends live
// in the file and sqlite subpackages and must report missing records with
// core.ErrNotFound.
package storage

import (
	"context"

	"bil/internal/core"
)

type (
	ProjectStore interface {
		// ListProjects returns projects ordered by id. Soft-deleted projects
		// are included only when includeDeleted is set.
		ListProjects(ctx context.Context, includeDeleted bool) ([]core.Project, error)
		// GetProject returns a live project.
		GetProject(ctx context.Context, id int) (core.Project, error)
		CreateProject(ctx context.Context, name string) (int, error)
		RenameProject(ctx context.Context, id int, name string) error
		DeleteProject(ctx context.Context, id int) error
		RestoreProject(ctx context.Context, id int) error
	}

	PaygroupStore interface {
		ListPaygroups(ctx context.Context, projectID int) ([]core.Paygroup, error)
		AddPaygroup(ctx context.Context, projectID int, name string) (int, error)
		RenamePaygroup(ctx context.Context, projectID, groupID int, name string) error
		// DeletePaygroup removes the group and returns it as it was stored.
		DeletePaygroup(ctx context.Context, projectID, groupID int) (core.Paygroup, error)
	}

	PaymentStore interface {
		GetPayment(ctx context.Context, projectID, groupID, paymentID int) (core.Payment, error)
		AddPayment(ctx context.Context, projectID, groupID int, in core.PaymentInput) (int, error)
		// UpdatePayment replaces the input fields and keeps id and attachment.
		UpdatePayment(ctx context.Context, projectID, groupID, paymentID int, in core.PaymentInput) error
		// DeletePayment removes the payment and returns it as it was stored.
		DeletePayment(ctx context.Context, projectID, groupID, paymentID int) (core.Payment, error)
		SetAttachment(ctx context.Context, projectID, groupID, paymentID int, filename string) error
	}

	// Stamper is implemented by backends that can cheaply tell whether a
	// project's stored state changed, including changes made by another
	// process. Equal stamps mean nothing was written in between.
	Stamper interface {
		Stamp(ctx context.Context, projectID int) (string, error)
	}

	// Ledger is the full persistence contract a backend provides.
	Ledger interface {
		ProjectStore
		PaygroupStore
		PaymentStore
		Close() error
	}
)
