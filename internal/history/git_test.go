package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestGit(t *testing.T) *Git {
	t.Helper()
	g := NewGit("")
	if !g.Available() {
		t.Skip("git binary not available")
	}
	return g
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSnapshotOnlyWhenChanged(t *testing.T) {
	g := newTestGit(t)
	ctx := context.Background()
	dir := t.TempDir()

	if err := g.Init(ctx, dir); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := g.Init(ctx, dir); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}

	if _, created, err := g.Snapshot(ctx, dir, "empty"); err != nil || created {
		t.Fatalf("Snapshot(empty dir) = created %v, %v; want false, nil", created, err)
	}

	writeFile(t, dir, "payments.json", `{"1": {}}`)
	first, created, err := g.Snapshot(ctx, dir, "first")
	if err != nil || !created {
		t.Fatalf("Snapshot() = created %v, %v; want true, nil", created, err)
	}
	if first.Message != "first" || !validID(first.ID) || first.Time.IsZero() {
		t.Errorf("Snapshot() = %+v", first)
	}

	if _, created, err := g.Snapshot(ctx, dir, "again"); err != nil || created {
		t.Errorf("Snapshot(unchanged) = created %v, %v; want false, nil", created, err)
	}

	writeFile(t, dir, "payments.json", `{"1": {}, "2": {}}`)
	if _, created, err := g.Snapshot(ctx, dir, "second"); err != nil || !created {
		t.Fatalf("Snapshot(changed) = created %v, %v", created, err)
	}

	snaps, err := g.List(ctx, dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(snaps) != 2 || snaps[0].Message != "second" || snaps[1].ID != first.ID {
		t.Errorf("List() = %+v, want [second first]", snaps)
	}
}

func TestRestore(t *testing.T) {
	g := newTestGit(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, dir, "payments.json", "v1")
	v1, _, err := g.Snapshot(ctx, dir, "v1")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "payments.json", "v2")
	writeFile(t, dir, "1_1.pdf", "%PDF")
	if _, _, err := g.Snapshot(ctx, dir, "v2"); err != nil {
		t.Fatal(err)
	}

	snap, err := g.Restore(ctx, dir, v1.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := readFile(t, dir, "payments.json"); got != "v1" {
		t.Errorf("payments.json = %q, want v1", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "1_1.pdf")); !os.IsNotExist(err) {
		t.Errorf("1_1.pdf should be gone after restore, stat err = %v", err)
	}

	snaps, err := g.List(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 3 || snaps[0].ID != snap.ID {
		t.Errorf("List() after restore = %+v, want restore on top of 2 snapshots", snaps)
	}
}

func TestRestoreRejectsBadIDs(t *testing.T) {
	g := newTestGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a", "a")
	if _, _, err := g.Snapshot(ctx, dir, "a"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"", "HEAD~1", "--help", "zzzz", "deadbeefdeadbeef"} {
		if _, err := g.Restore(ctx, dir, id); !errors.Is(err, ErrInvalidSnapshot) {
			t.Errorf("Restore(%q) error = %v, want ErrInvalidSnapshot", id, err)
		}
	}
}

func TestListUninitialized(t *testing.T) {
	g := newTestGit(t)
	if _, err := g.List(context.Background(), t.TempDir()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("List() error = %v, want ErrNotInitialized", err)
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc1", true},
		{"0123456789abcdef0123456789abcdef01234567", true},
		{"abc", false},
		{"HEAD", false},
		{"abc1;rm", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validID(tt.id); got != tt.want {
			t.Errorf("validID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
