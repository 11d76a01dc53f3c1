// Package file implements the ledger on plain JSON files:
//
//	<root>/projects.json               project id -> project
//	<root>/projects/<id>/payments.json paygroup id -> paygroup with nested payments
//
// Every write rewrites the whole document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"bil/internal/core"
	"bil/internal/storage"
)

const (
	projectsFile = "projects.json"
	paymentsFile = "payments.json"
)

var (
	_ storage.Ledger  = (*Store)(nil)
	_ storage.Stamper = (*Store)(nil)
)

type Store struct {
	// mu serializes read-modify-write cycles inside this process.
	mu   sync.Mutex
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, storage.ProjectsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Close() error {
	return nil
}

// Stamp implements storage.Stamper from the modification time and size of
// projects.json and the project's payments.json. Writes replace files
// through rename, so every write moves the stamp.
func (s *Store) Stamp(_ context.Context, projectID int) (string, error) {
	projects, err := fileStamp(s.projectsPath())
	if err != nil {
		return "", err
	}
	payments, err := fileStamp(s.paymentsPath(projectID))
	if err != nil {
		return "", err
	}
	return projects + "/" + payments, nil
}

func fileStamp(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "-", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 36) + ":" + strconv.FormatInt(info.Size(), 36), nil
}

func (s *Store) projectsPath() string {
	return filepath.Join(s.root, projectsFile)
}

func (s *Store) paymentsPath(projectID int) string {
	return filepath.Join(storage.ProjectDir(s.root, projectID), paymentsFile)
}

// ListProjects implements storage.ProjectStore
func (s *Store) ListProjects(_ context.Context, includeDeleted bool) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	out := make([]core.Project, 0, len(projects))
	for _, p := range projects {
		if p.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetProject implements storage.ProjectStore
func (s *Store) GetProject(_ context.Context, id int) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readProjects()
	if err != nil {
		return core.Project{}, err
	}
	p, ok := projects[id]
	if !ok || p.IsDeleted {
		return core.Project{}, fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

// CreateProject implements storage.ProjectStore
func (s *Store) CreateProject(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readProjects()
	if err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(projects))
	for id := range projects {
		ids = append(ids, id)
	}
	id := core.NextID(ids)

	if err := os.MkdirAll(storage.ProjectDir(s.root, id), 0o755); err != nil {
		return 0, fmt.Errorf("create project directory: %w", err)
	}
	projects[id] = core.Project{ID: id, Name: name}
	if err := s.writeProjects(projects); err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Project written", "project_id", id, "path", s.projectsPath())
	return id, nil
}

// RenameProject implements storage.ProjectStore
func (s *Store) RenameProject(_ context.Context, id int, name string) error {
	return s.updateProject(id, false, func(p *core.Project) { p.Name = name })
}

// DeleteProject implements storage.ProjectStore. The project directory is kept.
func (s *Store) DeleteProject(_ context.Context, id int) error {
	return s.updateProject(id, false, func(p *core.Project) { p.IsDeleted = true })
}

// RestoreProject implements storage.ProjectStore
func (s *Store) RestoreProject(_ context.Context, id int) error {
	return s.updateProject(id, true, func(p *core.Project) { p.IsDeleted = false })
}

func (s *Store) updateProject(id int, includeDeleted bool, mutate func(*core.Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readProjects()
	if err != nil {
		return err
	}
	p, ok := projects[id]
	if !ok || (p.IsDeleted && !includeDeleted) {
		return fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	mutate(&p)
	projects[id] = p
	return s.writeProjects(projects)
}

// ListPaygroups implements storage.PaygroupStore
func (s *Store) ListPaygroups(_ context.Context, projectID int) ([]core.Paygroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.readPaygroups(projectID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Paygroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddPaygroup implements storage.PaygroupStore
func (s *Store) AddPaygroup(_ context.Context, projectID int, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.readPaygroups(projectID)
	if err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	id := core.NextID(ids)
	groups[id] = core.Paygroup{ID: id, Name: name, Payments: []core.Payment{}}
	if err := s.writePaygroups(projectID, groups); err != nil {
		return 0, err
	}
	return id, nil
}

// RenamePaygroup implements storage.PaygroupStore
func (s *Store) RenamePaygroup(_ context.Context, projectID, groupID int, name string) error {
	return s.updatePaygroup(projectID, groupID, func(g *core.Paygroup) error {
		g.Name = name
		return nil
	})
}

// DeletePaygroup implements storage.PaygroupStore
func (s *Store) DeletePaygroup(_ context.Context, projectID, groupID int) (core.Paygroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.readPaygroups(projectID)
	if err != nil {
		return core.Paygroup{}, err
	}
	g, ok := groups[groupID]
	if !ok {
		return core.Paygroup{}, fmt.Errorf("paygroup %d: %w", groupID, core.ErrNotFound)
	}
	delete(groups, groupID)
	if err := s.writePaygroups(projectID, groups); err != nil {
		return core.Paygroup{}, err
	}
	return g, nil
}

// GetPayment implements storage.PaymentStore
func (s *Store) GetPayment(_ context.Context, projectID, groupID, paymentID int) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.readPaygroups(projectID)
	if err != nil {
		return core.Payment{}, err
	}
	g, ok := groups[groupID]
	if !ok {
		return core.Payment{}, fmt.Errorf("paygroup %d: %w", groupID, core.ErrNotFound)
	}
	i := g.PaymentIndex(paymentID)
	if i < 0 {
		return core.Payment{}, fmt.Errorf("payment %d: %w", paymentID, core.ErrNotFound)
	}
	return g.Payments[i], nil
}

// AddPayment implements storage.PaymentStore
func (s *Store) AddPayment(_ context.Context, projectID, groupID int, in core.PaymentInput) (int, error) {
	var id int
	err := s.updatePaygroup(projectID, groupID, func(g *core.Paygroup) error {
		id = core.NextID(g.PaymentIDs())
		g.Payments = append(g.Payments, in.Payment(id))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdatePayment implements storage.PaymentStore
func (s *Store) UpdatePayment(_ context.Context, projectID, groupID, paymentID int, in core.PaymentInput) error {
	return s.updatePayment(projectID, groupID, paymentID, func(p *core.Payment) {
		attachment := p.Attachment
		*p = in.Payment(paymentID)
		p.Attachment = attachment
	})
}

// SetAttachment implements storage.PaymentStore
func (s *Store) SetAttachment(_ context.Context, projectID, groupID, paymentID int, filename string) error {
	return s.updatePayment(projectID, groupID, paymentID, func(p *core.Payment) {
		p.Attachment = filename
	})
}

// DeletePayment implements storage.PaymentStore
func (s *Store) DeletePayment(_ context.Context, projectID, groupID, paymentID int) (core.Payment, error) {
	var removed core.Payment
	err := s.updatePaygroup(projectID, groupID, func(g *core.Paygroup) error {
		i := g.PaymentIndex(paymentID)
		if i < 0 {
			return fmt.Errorf("payment %d: %w", paymentID, core.ErrNotFound)
		}
		removed = g.Payments[i]
		g.Payments = append(g.Payments[:i], g.Payments[i+1:]...)
		return nil
	})
	return removed, err
}

func (s *Store) updatePayment(projectID, groupID, paymentID int, mutate func(*core.Payment)) error {
	return s.updatePaygroup(projectID, groupID, func(g *core.Paygroup) error {
		i := g.PaymentIndex(paymentID)
		if i < 0 {
			return fmt.Errorf("payment %d: %w", paymentID, core.ErrNotFound)
		}
		mutate(&g.Payments[i])
		return nil
	})
}

func (s *Store) updatePaygroup(projectID, groupID int, mutate func(*core.Paygroup) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.readPaygroups(projectID)
	if err != nil {
		return err
	}
	g, ok := groups[groupID]
	if !ok {
		return fmt.Errorf("paygroup %d: %w", groupID, core.ErrNotFound)
	}
	if err := mutate(&g); err != nil {
		return err
	}
	groups[groupID] = g
	return s.writePaygroups(projectID, groups)
}

func (s *Store) readProjects() (map[int]core.Project, error) {
	projects := make(map[int]core.Project)
	if err := readJSON(s.projectsPath(), &projects); err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	return projects, nil
}

func (s *Store) writeProjects(projects map[int]core.Project) error {
	if err := writeJSON(s.projectsPath(), projects); err != nil {
		return fmt.Errorf("write projects: %w", err)
	}
	return nil
}

// readPaygroups loads the paygroups of a live project. A project without a
// payments file has no paygroups.
func (s *Store) readPaygroups(projectID int) (map[int]core.Paygroup, error) {
	projects, err := s.readProjects()
	if err != nil {
		return nil, err
	}
	if p, ok := projects[projectID]; !ok || p.IsDeleted {
		return nil, fmt.Errorf("project %d: %w", projectID, core.ErrNotFound)
	}

	groups := make(map[int]core.Paygroup)
	if err := readJSON(s.paymentsPath(projectID), &groups); err != nil {
		return nil, fmt.Errorf("read paygroups of project %d: %w", projectID, err)
	}
	for id, g := range groups {
		if g.Payments == nil {
			g.Payments = []core.Payment{}
			groups[id] = g
		}
	}
	return groups, nil
}

func (s *Store) writePaygroups(projectID int, groups map[int]core.Paygroup) error {
	if err := writeJSON(s.paymentsPath(projectID), groups); err != nil {
		return fmt.Errorf("write paygroups of project %d: %w", projectID, err)
	}
	return nil
}

// readJSON decodes path into v and leaves v untouched when the file does not exist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path with the indented encoding of v via a temp file
// in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
