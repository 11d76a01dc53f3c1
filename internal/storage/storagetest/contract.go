// Package storagetest holds behaviour tests shared by every storage.Ledger backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"bil/internal/core"
	"bil/internal/storage"
)

// Factory returns an empty ledger for a single test.
type Factory func(t *testing.T) storage.Ledger

// Run exercises the ledger contract against ledgers produced by newLedger.
func Run(t *testing.T, newLedger Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, l storage.Ledger)
	}{
		{"ProjectIDs", testProjectIDs},
		{"ProjectSoftDelete", testProjectSoftDelete},
		{"ProjectRename", testProjectRename},
		{"Paygroups", testPaygroups},
		{"PaygroupsOfDeletedProject", testPaygroupsOfDeletedProject},
		{"Payments", testPayments},
		{"DeletePaymentKeepsSiblings", testDeletePaymentKeepsSiblings},
		{"UpdatePaymentKeepsAttachment", testUpdatePaymentKeepsAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			t.Cleanup(func() { l.Close() })
			tt.fn(t, l)
		})
	}
}

func mustCreateProject(t *testing.T, l storage.Ledger, name string) int {
	t.Helper()
	id, err := l.CreateProject(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateProject(%q) error = %v", name, err)
	}
	return id
}

func mustAddPaygroup(t *testing.T, l storage.Ledger, projectID int, name string) int {
	t.Helper()
	id, err := l.AddPaygroup(context.Background(), projectID, name)
	if err != nil {
		t.Fatalf("AddPaygroup(%d, %q) error = %v", projectID, name, err)
	}
	return id
}

func mustAddPayment(t *testing.T, l storage.Ledger, projectID, groupID int, in core.PaymentInput) int {
	t.Helper()
	id, err := l.AddPayment(context.Background(), projectID, groupID, in)
	if err != nil {
		t.Fatalf("AddPayment(%d, %d) error = %v", projectID, groupID, err)
	}
	return id
}

func milk() core.PaymentInput {
	return core.PaymentInput{
		Name:     "Milk",
		Date:     core.NewDate(2022, 1, 1),
		Asset:    500000,
		Currency: "USD",
	}
}

func testProjectIDs(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		if got := mustCreateProject(t, l, "p"); got != want {
			t.Fatalf("CreateProject() = %d, want %d", got, want)
		}
	}
	if err := l.DeleteProject(ctx, 3); err != nil {
		t.Fatalf("DeleteProject(3) error = %v", err)
	}
	// Soft-deleted projects still count for allocation.
	if got := mustCreateProject(t, l, "p"); got != 4 {
		t.Fatalf("CreateProject() after delete = %d, want 4", got)
	}
}

func testProjectSoftDelete(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	keep := mustCreateProject(t, l, "Keep")
	gone := mustCreateProject(t, l, "Gone")
	gid := mustAddPaygroup(t, l, gone, "Rent")
	mustAddPayment(t, l, gone, gid, milk())

	if err := l.DeleteProject(ctx, gone); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if err := l.DeleteProject(ctx, gone); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteProject() error = %v, want ErrNotFound", err)
	}
	if err := l.DeleteProject(ctx, 99); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteProject(99) error = %v, want ErrNotFound", err)
	}
	if _, err := l.GetProject(ctx, gone); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetProject(deleted) error = %v, want ErrNotFound", err)
	}

	live, err := l.ListProjects(ctx, false)
	if err != nil {
		t.Fatalf("ListProjects(false) error = %v", err)
	}
	if len(live) != 1 || live[0].ID != keep {
		t.Errorf("ListProjects(false) = %+v, want only project %d", live, keep)
	}

	all, err := l.ListProjects(ctx, true)
	if err != nil {
		t.Fatalf("ListProjects(true) error = %v", err)
	}
	if len(all) != 2 || all[0].ID != keep || all[1].ID != gone || !all[1].IsDeleted {
		t.Errorf("ListProjects(true) = %+v", all)
	}

	if err := l.RestoreProject(ctx, gone); err != nil {
		t.Fatalf("RestoreProject() error = %v", err)
	}
	if err := l.RestoreProject(ctx, gone); err != nil {
		t.Errorf("RestoreProject() on live project error = %v, want nil", err)
	}
	if err := l.RestoreProject(ctx, 99); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RestoreProject(99) error = %v, want ErrNotFound", err)
	}

	groups, err := l.ListPaygroups(ctx, gone)
	if err != nil {
		t.Fatalf("ListPaygroups() after restore error = %v", err)
	}
	if len(groups) != 1 || len(groups[0].Payments) != 1 {
		t.Errorf("ListPaygroups() after restore = %+v, want the group with its payment", groups)
	}
}

func testProjectRename(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	id := mustCreateProject(t, l, "Old")
	if err := l.RenameProject(ctx, id, "New"); err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	p, err := l.GetProject(ctx, id)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if p.Name != "New" {
		t.Errorf("Name = %q, want New", p.Name)
	}
	if err := l.RenameProject(ctx, 42, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RenameProject(42) error = %v, want ErrNotFound", err)
	}
	if err := l.DeleteProject(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := l.RenameProject(ctx, id, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RenameProject(deleted) error = %v, want ErrNotFound", err)
	}
}

func testPaygroups(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	pid := mustCreateProject(t, l, "Trip")

	groups, err := l.ListPaygroups(ctx, pid)
	if err != nil {
		t.Fatalf("ListPaygroups() error = %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("ListPaygroups() on new project = %+v, want empty", groups)
	}

	first := mustAddPaygroup(t, l, pid, "Food")
	second := mustAddPaygroup(t, l, pid, "Food")
	if first != 1 || second != 2 {
		t.Fatalf("paygroup ids = %d, %d, want 1, 2", first, second)
	}
	if err := l.RenamePaygroup(ctx, pid, second, "Hotel"); err != nil {
		t.Fatalf("RenamePaygroup() error = %v", err)
	}
	if err := l.RenamePaygroup(ctx, pid, 9, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RenamePaygroup(9) error = %v, want ErrNotFound", err)
	}

	groups, err = l.ListPaygroups(ctx, pid)
	if err != nil {
		t.Fatalf("ListPaygroups() error = %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "Food" || groups[1].Name != "Hotel" {
		t.Fatalf("ListPaygroups() = %+v", groups)
	}
	if groups[0].Payments == nil {
		t.Error("Payments = nil, want empty slice")
	}

	removed, err := l.DeletePaygroup(ctx, pid, first)
	if err != nil {
		t.Fatalf("DeletePaygroup() error = %v", err)
	}
	if removed.ID != first || removed.Name != "Food" {
		t.Errorf("DeletePaygroup() = %+v", removed)
	}
	if _, err := l.DeletePaygroup(ctx, pid, first); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeletePaygroup() error = %v, want ErrNotFound", err)
	}
	if _, err := l.AddPaygroup(ctx, 77, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddPaygroup(missing project) error = %v, want ErrNotFound", err)
	}
	if _, err := l.ListPaygroups(ctx, 77); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ListPaygroups(missing project) error = %v, want ErrNotFound", err)
	}
}

func testPaygroupsOfDeletedProject(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	pid := mustCreateProject(t, l, "Old")
	gid := mustAddPaygroup(t, l, pid, "G")
	if err := l.DeleteProject(ctx, pid); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ListPaygroups(ctx, pid); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ListPaygroups() error = %v, want ErrNotFound", err)
	}
	if _, err := l.AddPayment(ctx, pid, gid, milk()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddPayment() error = %v, want ErrNotFound", err)
	}
}

func testPayments(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	pid := mustCreateProject(t, l, "Test")
	gid := mustAddPaygroup(t, l, pid, "Groceries")

	in := core.PaymentInput{
		Name:      "Test Payment",
		Date:      core.NewDate(2022, 1, 1),
		Asset:     1500000000,
		Liability: 30000000,
		Currency:  "USD",
	}
	id := mustAddPayment(t, l, pid, gid, in)
	if id != 1 {
		t.Fatalf("AddPayment() = %d, want 1", id)
	}

	got, err := l.GetPayment(ctx, pid, gid, id)
	if err != nil {
		t.Fatalf("GetPayment() error = %v", err)
	}
	if got.Input() != in {
		t.Errorf("GetPayment() = %+v, want fields of %+v", got, in)
	}
	if got.Attachment != "" {
		t.Errorf("Attachment = %q, want empty", got.Attachment)
	}

	if _, err := l.GetPayment(ctx, pid, gid, 5); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPayment(5) error = %v, want ErrNotFound", err)
	}
	if _, err := l.AddPayment(ctx, pid, 5, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddPayment(missing group) error = %v, want ErrNotFound", err)
	}
	if err := l.UpdatePayment(ctx, pid, gid, 5, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdatePayment(5) error = %v, want ErrNotFound", err)
	}
	if _, err := l.DeletePayment(ctx, pid, gid, 5); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeletePayment(5) error = %v, want ErrNotFound", err)
	}

	in.Name = "Renamed"
	in.Liability = 0
	if err := l.UpdatePayment(ctx, pid, gid, id, in); err != nil {
		t.Fatalf("UpdatePayment() error = %v", err)
	}
	got, err = l.GetPayment(ctx, pid, gid, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Input() != in || got.ID != id {
		t.Errorf("after UpdatePayment() = %+v, want fields of %+v", got, in)
	}
}

func testDeletePaymentKeepsSiblings(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	pid := mustCreateProject(t, l, "P")
	gid := mustAddPaygroup(t, l, pid, "G")
	for i := 0; i < 3; i++ {
		mustAddPayment(t, l, pid, gid, milk())
	}

	removed, err := l.DeletePayment(ctx, pid, gid, 2)
	if err != nil {
		t.Fatalf("DeletePayment(2) error = %v", err)
	}
	if removed.ID != 2 {
		t.Errorf("DeletePayment() returned id %d, want 2", removed.ID)
	}

	groups, err := l.ListPaygroups(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	ids := groups[0].PaymentIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("remaining payment ids = %v, want [1 3]", ids)
	}
	if next := mustAddPayment(t, l, pid, gid, milk()); next != 4 {
		t.Errorf("AddPayment() after delete = %d, want 4", next)
	}
}

func testUpdatePaymentKeepsAttachment(t *testing.T, l storage.Ledger) {
	ctx := context.Background()
	pid := mustCreateProject(t, l, "P")
	gid := mustAddPaygroup(t, l, pid, "G")
	id := mustAddPayment(t, l, pid, gid, milk())

	if err := l.SetAttachment(ctx, pid, gid, id, "1_1.pdf"); err != nil {
		t.Fatalf("SetAttachment() error = %v", err)
	}
	in := milk()
	in.Name = "Bread"
	if err := l.UpdatePayment(ctx, pid, gid, id, in); err != nil {
		t.Fatal(err)
	}
	got, err := l.GetPayment(ctx, pid, gid, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attachment != "1_1.pdf" || got.Name != "Bread" {
		t.Errorf("GetPayment() = %+v, want Bread with attachment 1_1.pdf", got)
	}
	if err := l.SetAttachment(ctx, pid, gid, id, ""); err != nil {
		t.Fatal(err)
	}
	got, _ = l.GetPayment(ctx, pid, gid, id)
	if got.Attachment != "" {
		t.Errorf("Attachment after clear = %q, want empty", got.Attachment)
	}
}
