package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	authorName  = "bil"
	authorEmail = "bil@localhost"
	fieldSep    = "\x1f"
)

var _ Snapshotter = (*Git)(nil)

// Git keeps one git repository per directory and drives it through the git binary.
type Git struct {
	binary string
}

func NewGit(binary string) *Git {
	if binary == "" {
		binary = "git"
	}
	return &Git{binary: binary}
}

// Available reports whether the git binary can be found.
func (g *Git) Available() bool {
	_, err := exec.LookPath(g.binary)
	return err == nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-c", "user.name=" + authorName, "-c", "user.email=" + authorEmail}, args...)
	cmd := exec.CommandContext(ctx, g.binary, full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (g *Git) initialized(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// Init implements Snapshotter
func (g *Git) Init(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if g.initialized(dir) {
		return nil
	}
	if _, err := g.run(ctx, dir, "init", "--quiet"); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Initialized history", "dir", dir)
	return nil
}

// Snapshot implements Snapshotter. An uninitialized directory is initialized first.
func (g *Git) Snapshot(ctx context.Context, dir, message string) (Snapshot, bool, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, fmt.Errorf("snapshot %s: %w", dir, err)
	}
	if err := g.Init(ctx, dir); err != nil {
		return Snapshot{}, false, err
	}
	if message == "" {
		message = "snapshot"
	}

	if _, err := g.run(ctx, dir, "add", "--all"); err != nil {
		return Snapshot{}, false, err
	}

	// diff --cached --quiet exits 1 when the index differs from HEAD. On an
	// empty repository there is no HEAD, so anything staged counts.
	if g.hasHead(ctx, dir) {
		_, err := g.run(ctx, dir, "diff", "--cached", "--quiet")
		if err == nil {
			return Snapshot{}, false, nil
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return Snapshot{}, false, err
		}
	} else {
		out, err := g.run(ctx, dir, "ls-files")
		if err != nil {
			return Snapshot{}, false, err
		}
		if strings.TrimSpace(out) == "" {
			return Snapshot{}, false, nil
		}
	}

	if _, err := g.run(ctx, dir, "commit", "--quiet", "--no-gpg-sign", "-m", message); err != nil {
		return Snapshot{}, false, err
	}
	snaps, err := g.log(ctx, dir, "-1")
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, false, fmt.Errorf("snapshot %s: commit not found", dir)
	}
	return snaps[0], true, nil
}

func (g *Git) hasHead(ctx context.Context, dir string) bool {
	_, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

// List implements Snapshotter
func (g *Git) List(ctx context.Context, dir string) ([]Snapshot, error) {
	if !g.initialized(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, ErrNotInitialized)
	}
	if !g.hasHead(ctx, dir) {
		return []Snapshot{}, nil
	}
	return g.log(ctx, dir)
}

func (g *Git) log(ctx context.Context, dir string, extra ...string) ([]Snapshot, error) {
	args := append([]string{"log", "--format=%H%x1f%cI%x1f%s"}, extra...)
	out, err := g.run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}

	snaps := []Snapshot{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("unexpected git log line %q", line)
		}
		ts, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse commit time %q: %w", parts[1], err)
		}
		snaps = append(snaps, Snapshot{ID: parts[0], Time: ts, Message: parts[2]})
	}
	return snaps, nil
}

// Restore implements Snapshotter
func (g *Git) Restore(ctx context.Context, dir, id string) (Snapshot, error) {
	if !validID(id) {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidSnapshot, id)
	}
	if !g.initialized(dir) {
		return Snapshot{}, fmt.Errorf("restore %s: %w", dir, ErrNotInitialized)
	}
	if _, err := g.run(ctx, dir, "cat-file", "-e", id+"^{commit}"); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s not found", ErrInvalidSnapshot, id)
	}

	// Record unsaved changes so the restore itself can be undone.
	if _, _, err := g.Snapshot(ctx, dir, "before restore of "+shortID(id)); err != nil {
		return Snapshot{}, err
	}
	if _, err := g.run(ctx, dir, "read-tree", "-u", "--reset", id); err != nil {
		return Snapshot{}, err
	}

	snap, created, err := g.Snapshot(ctx, dir, "restore "+shortID(id))
	if err != nil {
		return Snapshot{}, err
	}
	if !created {
		snaps, err := g.log(ctx, dir, "-1")
		if err != nil {
			return Snapshot{}, err
		}
		snap = snaps[0]
	}
	slog.InfoContext(ctx, "Restored history snapshot", "dir", dir, "snapshot", id, "head", snap.ID)
	return snap, nil
}

func validID(id string) bool {
	if len(id) < 4 || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
