// Package sqlite stores the ledger in a single SQLite database. Attachments
// stay on disk next to the file backend's layout.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"bil/internal/core"
	"bil/internal/storage"

	_ "modernc.org/sqlite"
)

var (
	_ storage.Ledger  = (*Repository)(nil)
	_ storage.Stamper = (*Repository)(nil)
)

type Repository struct {
	db     *sql.DB
	dbPath string
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite would otherwise answer SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dbPath: dbPath}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Stamp implements storage.Stamper. Any committed write, from this process
// or another, changes the database file or its journal, so the stamp covers
// the whole database rather than one project.
func (r *Repository) Stamp(_ context.Context, _ int) (string, error) {
	var stamp string
	for _, path := range []string{r.dbPath, r.dbPath + "-wal"} {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			stamp += "-;"
		case err != nil:
			return "", fmt.Errorf("stat database: %w", err)
		default:
			stamp += strconv.FormatInt(info.ModTime().UnixNano(), 36) + ":" + strconv.FormatInt(info.Size(), 36) + ";"
		}
	}
	return stamp, nil
}

func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nextID(ctx context.Context, q querier, query string, args ...any) (int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return core.NextID(ids), nil
}

func requireLiveProject(ctx context.Context, q querier, id int) error {
	var deleted bool
	err := q.QueryRowContext(ctx, `SELECT is_deleted FROM projects WHERE id = ?`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get project %d: %w", id, err)
	}
	return nil
}

func requirePaygroup(ctx context.Context, q querier, projectID, groupID int) (string, error) {
	if err := requireLiveProject(ctx, q, projectID); err != nil {
		return "", err
	}
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM paygroups WHERE project_id = ? AND id = ?`, projectID, groupID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("paygroup %d: %w", groupID, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get paygroup %d: %w", groupID, err)
	}
	return name, nil
}

// ListProjects implements storage.ProjectStore
func (r *Repository) ListProjects(ctx context.Context, includeDeleted bool) ([]core.Project, error) {
	query := `SELECT id, name, is_deleted FROM projects WHERE is_deleted = 0 ORDER BY id`
	if includeDeleted {
		query = `SELECT id, name, is_deleted FROM projects ORDER BY id`
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []core.Project{}
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.IsDeleted); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject implements storage.ProjectStore
func (r *Repository) GetProject(ctx context.Context, id int) (core.Project, error) {
	p := core.Project{ID: id}
	err := r.db.QueryRowContext(ctx,
		`SELECT name, is_deleted FROM projects WHERE id = ?`, id).Scan(&p.Name, &p.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && p.IsDeleted) {
		return core.Project{}, fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project %d: %w", id, err)
	}
	return p, nil
}

// CreateProject implements storage.ProjectStore
func (r *Repository) CreateProject(ctx context.Context, name string) (int, error) {
	var id int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = nextID(ctx, tx, `SELECT id FROM projects`)
		if err != nil {
			return fmt.Errorf("allocate project id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, is_deleted) VALUES (?, ?, 0)`, id, name); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Project saved to SQLite", "project_id", id)
	return id, nil
}

// RenameProject implements storage.ProjectStore
func (r *Repository) RenameProject(ctx context.Context, id int, name string) error {
	return r.execOne(ctx, fmt.Sprintf("project %d", id),
		`UPDATE projects SET name = ? WHERE id = ? AND is_deleted = 0`, name, id)
}

// DeleteProject implements storage.ProjectStore
func (r *Repository) DeleteProject(ctx context.Context, id int) error {
	return r.execOne(ctx, fmt.Sprintf("project %d", id),
		`UPDATE projects SET is_deleted = 1 WHERE id = ? AND is_deleted = 0`, id)
}

// RestoreProject implements storage.ProjectStore
func (r *Repository) RestoreProject(ctx context.Context, id int) error {
	return r.execOne(ctx, fmt.Sprintf("project %d", id),
		`UPDATE projects SET is_deleted = 0 WHERE id = ?`, id)
}

// execOne runs a statement that must touch exactly one row.
func (r *Repository) execOne(ctx context.Context, what string, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

// ListPaygroups implements storage.PaygroupStore
func (r *Repository) ListPaygroups(ctx context.Context, projectID int) ([]core.Paygroup, error) {
	var groups []core.Paygroup
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireLiveProject(ctx, tx, projectID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name FROM paygroups WHERE project_id = ? ORDER BY id`, projectID)
		if err != nil {
			return fmt.Errorf("list paygroups: %w", err)
		}
		groups = []core.Paygroup{}
		index := make(map[int]int)
		for rows.Next() {
			g := core.Paygroup{Payments: []core.Payment{}}
			if err := rows.Scan(&g.ID, &g.Name); err != nil {
				rows.Close()
				return fmt.Errorf("scan paygroup: %w", err)
			}
			index[g.ID] = len(groups)
			groups = append(groups, g)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		payments, err := tx.QueryContext(ctx, `
			SELECT group_id, id, name, date, asset, liability, currency, attachment
			FROM payments WHERE project_id = ? ORDER BY group_id, id`, projectID)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		defer payments.Close()
		for payments.Next() {
			var groupID int
			p, err := scanPayment(payments, &groupID)
			if err != nil {
				return err
			}
			if i, ok := index[groupID]; ok {
				groups[i].Payments = append(groups[i].Payments, p)
			}
		}
		return payments.Err()
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner, groupID *int) (core.Payment, error) {
	var (
		p    core.Payment
		date string
	)
	if err := s.Scan(groupID, &p.ID, &p.Name, &date, &p.Asset, &p.Liability, &p.Currency, &p.Attachment); err != nil {
		return core.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %d has date %q: %w", p.ID, date, err)
	}
	p.Date = d
	return p, nil
}

// AddPaygroup implements storage.PaygroupStore
func (r *Repository) AddPaygroup(ctx context.Context, projectID int, name string) (int, error) {
	var id int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireLiveProject(ctx, tx, projectID); err != nil {
			return err
		}
		var err error
		id, err = nextID(ctx, tx, `SELECT id FROM paygroups WHERE project_id = ?`, projectID)
		if err != nil {
			return fmt.Errorf("allocate paygroup id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO paygroups (project_id, id, name) VALUES (?, ?, ?)`, projectID, id, name); err != nil {
			return fmt.Errorf("insert paygroup: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RenamePaygroup implements storage.PaygroupStore
func (r *Repository) RenamePaygroup(ctx context.Context, projectID, groupID int, name string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := requirePaygroup(ctx, tx, projectID, groupID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE paygroups SET name = ? WHERE project_id = ? AND id = ?`, name, projectID, groupID); err != nil {
			return fmt.Errorf("rename paygroup: %w", err)
		}
		return nil
	})
}

// DeletePaygroup implements storage.PaygroupStore
func (r *Repository) DeletePaygroup(ctx context.Context, projectID, groupID int) (core.Paygroup, error) {
	var removed core.Paygroup
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		name, err := requirePaygroup(ctx, tx, projectID, groupID)
		if err != nil {
			return err
		}
		removed = core.Paygroup{ID: groupID, Name: name, Payments: []core.Payment{}}

		rows, err := tx.QueryContext(ctx, `
			SELECT group_id, id, name, date, asset, liability, currency, attachment
			FROM payments WHERE project_id = ? AND group_id = ? ORDER BY id`, projectID, groupID)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		for rows.Next() {
			var gid int
			p, err := scanPayment(rows, &gid)
			if err != nil {
				rows.Close()
				return err
			}
			removed.Payments = append(removed.Payments, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM payments WHERE project_id = ? AND group_id = ?`, projectID, groupID); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paygroups WHERE project_id = ? AND id = ?`, projectID, groupID); err != nil {
			return fmt.Errorf("delete paygroup: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Paygroup{}, err
	}
	return removed, nil
}

// GetPayment implements storage.PaymentStore
func (r *Repository) GetPayment(ctx context.Context, projectID, groupID, paymentID int) (core.Payment, error) {
	var p core.Payment
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = getPayment(ctx, tx, projectID, groupID, paymentID)
		return err
	})
	return p, err
}

func getPayment(ctx context.Context, q querier, projectID, groupID, paymentID int) (core.Payment, error) {
	if _, err := requirePaygroup(ctx, q, projectID, groupID); err != nil {
		return core.Payment{}, err
	}
	var gid int
	row := q.QueryRowContext(ctx, `
		SELECT group_id, id, name, date, asset, liability, currency, attachment
		FROM payments WHERE project_id = ? AND group_id = ? AND id = ?`, projectID, groupID, paymentID)
	p, err := scanPayment(row, &gid)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, fmt.Errorf("payment %d: %w", paymentID, core.ErrNotFound)
	}
	return p, err
}

// AddPayment implements storage.PaymentStore
func (r *Repository) AddPayment(ctx context.Context, projectID, groupID int, in core.PaymentInput) (int, error) {
	var id int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := requirePaygroup(ctx, tx, projectID, groupID); err != nil {
			return err
		}
		var err error
		id, err = nextID(ctx, tx,
			`SELECT id FROM payments WHERE project_id = ? AND group_id = ?`, projectID, groupID)
		if err != nil {
			return fmt.Errorf("allocate payment id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (project_id, group_id, id, name, date, asset, liability, currency, attachment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, '')`,
			projectID, groupID, id, in.Name, in.Date.String(), int64(in.Asset), int64(in.Liability), in.Currency); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdatePayment implements storage.PaymentStore. The attachment is kept.
func (r *Repository) UpdatePayment(ctx context.Context, projectID, groupID, paymentID int, in core.PaymentInput) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getPayment(ctx, tx, projectID, groupID, paymentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET name = ?, date = ?, asset = ?, liability = ?, currency = ?
			WHERE project_id = ? AND group_id = ? AND id = ?`,
			in.Name, in.Date.String(), int64(in.Asset), int64(in.Liability), in.Currency,
			projectID, groupID, paymentID); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		return nil
	})
}

// SetAttachment implements storage.PaymentStore
func (r *Repository) SetAttachment(ctx context.Context, projectID, groupID, paymentID int, filename string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getPayment(ctx, tx, projectID, groupID, paymentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET attachment = ? WHERE project_id = ? AND group_id = ? AND id = ?`,
			filename, projectID, groupID, paymentID); err != nil {
			return fmt.Errorf("set attachment: %w", err)
		}
		return nil
	})
}

// DeletePayment implements storage.PaymentStore
func (r *Repository) DeletePayment(ctx context.Context, projectID, groupID, paymentID int) (core.Payment, error) {
	var removed core.Payment
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = getPayment(ctx, tx, projectID, groupID, paymentID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM payments WHERE project_id = ? AND group_id = ? AND id = ?`,
			projectID, groupID, paymentID); err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Payment{}, err
	}
	return removed, nil
}
