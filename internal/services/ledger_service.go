package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"bil/internal/amqp"
	"bil/internal/attachment"
	"bil/internal/cache"
	"bil/internal/core"
	"bil/internal/history"
	"bil/internal/log"
	"bil/internal/metrics"
	"bil/internal/storage"
	"bil/internal/storage/file"
)

// ErrHistoryDisabled is returned by history operations when no snapshotter is configured.
var ErrHistoryDisabled = errors.New("history is disabled")

// ErrRestoreUnsupported is returned by RestoreSnapshot when paygroups and
// payments live outside the project directory, so a restore could only roll
// back attachments.
var ErrRestoreUnsupported = errors.New("snapshot restore requires the file backend")

// Publisher announces that a project changed.
type Publisher interface {
	PublishProjectChanged(ctx context.Context, projectID int, operation string) error
}

// Options carries the optional collaborators of a LedgerService.
type Options struct {
	Publisher Publisher
	History   history.Snapshotter
	Cache     cache.Cache[CachedProject]
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// CachedProject is a project detail and the storage stamp it was read at.
type CachedProject struct {
	Detail core.ProjectDetail
	Stamp  string
}

// LedgerService orchestrates ledger operations across storage, attachments,
// the read cache and change notifications.
type LedgerService struct {
	ledger      storage.Ledger
	attachments *attachment.Store
	dataDir     string

	publisher Publisher
	history   history.Snapshotter
	cache     cache.Cache[CachedProject]
	metrics   *metrics.Metrics
	logger    *log.Logger
	events    *log.StructuredLogger

	// cacheMu guards cacheGen, which moves on every invalidation. A load
	// only populates the cache if no invalidation happened while it ran.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewLedgerService wires a ledger rooted at dataDir. Project directories for
// attachments and history live below dataDir.
func NewLedgerService(ledger storage.Ledger, attachments *attachment.Store, dataDir string, opts Options) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		ledger:      ledger,
		attachments: attachments,
		dataDir:     dataDir,
		publisher:   opts.Publisher,
		history:     opts.History,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		logger:      logger,
		events:      log.NewStructuredLogger(logger),
	}
}

// ProjectDir is where the project's attachments and history live.
func (s *LedgerService) ProjectDir(projectID int) string {
	return storage.ProjectDir(s.dataDir, projectID)
}

func (s *LedgerService) record(op string, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.LedgerOp(op, metrics.ResultOK)
	case errors.Is(err, core.ErrNotFound):
		s.metrics.LedgerOp(op, metrics.ResultNotFound)
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrUnsupportedMedia), errors.Is(err, core.ErrTooLarge):
		s.metrics.LedgerOp(op, metrics.ResultInvalid)
	default:
		s.metrics.LedgerOp(op, metrics.ResultError)
	}
}

// changed runs after every successful mutation of a project.
func (s *LedgerService) changed(ctx context.Context, operation string, projectID, groupID, paymentID int) {
	s.invalidate(projectID)
	s.events.LogLedgerChange(ctx, operation, projectID, groupID, paymentID)

	if s.publisher != nil {
		if err := s.publisher.PublishProjectChanged(ctx, projectID, operation); err != nil {
			s.metrics.Event("publish_failed")
			s.logger.ErrorContext(ctx, "Failed to publish project change",
				log.FieldProjectID, projectID,
				log.FieldOperation, operation,
				log.FieldError, err)
			return
		}
		s.metrics.Event("published")
		return
	}

	// Without a broker the snapshot is taken inline.
	if s.history != nil {
		if _, _, err := s.history.Snapshot(ctx, s.ProjectDir(projectID), operation); err != nil {
			s.logger.WarnContext(ctx, "Failed to snapshot project",
				log.FieldProjectID, projectID,
				log.FieldOperation, operation,
				log.FieldError, err)
		}
	}
}

// MaxAttachmentBytes is the largest accepted attachment.
func (s *LedgerService) MaxAttachmentBytes() int64 {
	return s.attachments.MaxBytes()
}

// Ping checks that storage is reachable. Stores without a health check are
// always considered ready.
func (s *LedgerService) Ping(ctx context.Context) error {
	if p, ok := s.ledger.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return ctx.Err()
}

// ListProjects returns projects sorted by id; soft-deleted ones only when includeDeleted is set.
func (s *LedgerService) ListProjects(ctx context.Context, includeDeleted bool) ([]core.Project, error) {
	projects, err := s.ledger.ListProjects(ctx, includeDeleted)
	s.record("list_projects", err)
	return projects, err
}

// GetProject returns a live project with its paygroups and payments.
// Cached details are served only while the backend's stamp is unchanged, so
// writes made by other processes are seen immediately.
func (s *LedgerService) GetProject(ctx context.Context, id int) (core.ProjectDetail, error) {
	if s.cache == nil {
		detail, err := s.loadProject(ctx, id)
		s.record("get_project", err)
		return detail, err
	}

	key := strconv.Itoa(id)
	stamp, stamped := s.stamp(ctx, id)
	if cached, ok := s.cache.Get(key); ok && stamped && cached.Stamp == stamp {
		return cached.Detail, nil
	}

	gen := s.generation()
	detail, err := s.loadProject(ctx, id)
	s.record("get_project", err)
	if err != nil {
		s.cache.Delete(key)
		return core.ProjectDetail{}, err
	}
	if stamped {
		s.storeCached(key, gen, CachedProject{Detail: detail, Stamp: stamp})
	}
	return detail, nil
}

// stamp reads the backend's change stamp for a project. Backends without
// one get a constant stamp and rely on in-process invalidation. The second result is
// false when the stamp could not be read, and nothing may be cached then.
func (s *LedgerService) stamp(ctx context.Context, id int) (string, bool) {
	st, ok := s.ledger.(storage.Stamper)
	if !ok {
		return "", true
	}
	stamp, err := st.Stamp(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read storage stamp, bypassing cache",
			log.FieldProjectID, id, log.FieldError, err)
		return "", false
	}
	return stamp, true
}

func (s *LedgerService) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

func (s *LedgerService) storeCached(key string, gen uint64, entry CachedProject) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return
	}
	s.cache.Set(key, entry)
}

func (s *LedgerService) invalidate(projectID int) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	s.cache.Delete(strconv.Itoa(projectID))
}

func (s *LedgerService) loadProject(ctx context.Context, id int) (core.ProjectDetail, error) {
	p, err := s.ledger.GetProject(ctx, id)
	if err != nil {
		return core.ProjectDetail{}, err
	}
	groups, err := s.ledger.ListPaygroups(ctx, id)
	if err != nil {
		return core.ProjectDetail{}, err
	}
	return core.ProjectDetail{ID: p.ID, Name: p.Name, Paygroups: groups}, nil
}

func (s *LedgerService) CreateProject(ctx context.Context, name string) (int, error) {
	if err := core.ValidateName(name); err != nil {
		s.record("create_project", err)
		return 0, err
	}
	id, err := s.ledger.CreateProject(ctx, name)
	s.record("create_project", err)
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	if err := os.MkdirAll(s.ProjectDir(id), 0o755); err != nil {
		return 0, fmt.Errorf("create project directory: %w", err)
	}

	if s.history != nil {
		if err := s.history.Init(ctx, s.ProjectDir(id)); err != nil {
			s.logger.WarnContext(ctx, "Failed to initialize project history",
				log.FieldProjectID, id, log.FieldError, err)
		}
	}
	s.changed(ctx, amqp.OpProjectCreated, id, 0, 0)
	return id, nil
}

func (s *LedgerService) RenameProject(ctx context.Context, id int, name string) error {
	if err := core.ValidateName(name); err != nil {
		s.record("rename_project", err)
		return err
	}
	err := s.ledger.RenameProject(ctx, id, name)
	s.record("rename_project", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpProjectRenamed, id, 0, 0)
	return nil
}

// DeleteProject soft-deletes a project; its data stays on disk.
func (s *LedgerService) DeleteProject(ctx context.Context, id int) error {
	err := s.ledger.DeleteProject(ctx, id)
	s.record("delete_project", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpProjectDeleted, id, 0, 0)
	return nil
}

func (s *LedgerService) RestoreProject(ctx context.Context, id int) error {
	err := s.ledger.RestoreProject(ctx, id)
	s.record("restore_project", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpProjectRestored, id, 0, 0)
	return nil
}

func (s *LedgerService) ListPaygroups(ctx context.Context, projectID int) ([]core.Paygroup, error) {
	groups, err := s.ledger.ListPaygroups(ctx, projectID)
	s.record("list_paygroups", err)
	return groups, err
}

func (s *LedgerService) AddPaygroup(ctx context.Context, projectID int, name string) (int, error) {
	if err := core.ValidateName(name); err != nil {
		s.record("add_paygroup", err)
		return 0, err
	}
	id, err := s.ledger.AddPaygroup(ctx, projectID, name)
	s.record("add_paygroup", err)
	if err != nil {
		return 0, err
	}
	s.changed(ctx, amqp.OpPaygroupAdded, projectID, id, 0)
	return id, nil
}

func (s *LedgerService) RenamePaygroup(ctx context.Context, projectID, groupID int, name string) error {
	if err := core.ValidateName(name); err != nil {
		s.record("rename_paygroup", err)
		return err
	}
	err := s.ledger.RenamePaygroup(ctx, projectID, groupID, name)
	s.record("rename_paygroup", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpPaygroupRenamed, projectID, groupID, 0)
	return nil
}

// DeletePaygroup removes the group, its payments and their attachment files.
func (s *LedgerService) DeletePaygroup(ctx context.Context, projectID, groupID int) error {
	removed, err := s.ledger.DeletePaygroup(ctx, projectID, groupID)
	s.record("delete_paygroup", err)
	if err != nil {
		return err
	}
	if err := s.attachments.RemoveAll(projectID, removed); err != nil {
		s.logger.WarnContext(ctx, "Failed to remove paygroup attachments",
			log.FieldProjectID, projectID, log.FieldPaygroupID, groupID, log.FieldError, err)
	}
	s.changed(ctx, amqp.OpPaygroupDeleted, projectID, groupID, 0)
	return nil
}

func (s *LedgerService) AddPayment(ctx context.Context, projectID, groupID int, in core.PaymentInput) (int, error) {
	if err := in.Validate(); err != nil {
		s.record("add_payment", err)
		return 0, err
	}
	id, err := s.ledger.AddPayment(ctx, projectID, groupID, in)
	s.record("add_payment", err)
	if err != nil {
		return 0, err
	}
	s.changed(ctx, amqp.OpPaymentAdded, projectID, groupID, id)
	return id, nil
}

// UpdatePayment replaces the payment's fields and keeps its attachment.
func (s *LedgerService) UpdatePayment(ctx context.Context, projectID, groupID, paymentID int, in core.PaymentInput) error {
	if err := in.Validate(); err != nil {
		s.record("update_payment", err)
		return err
	}
	err := s.ledger.UpdatePayment(ctx, projectID, groupID, paymentID, in)
	s.record("update_payment", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpPaymentUpdated, projectID, groupID, paymentID)
	return nil
}

func (s *LedgerService) DeletePayment(ctx context.Context, projectID, groupID, paymentID int) error {
	removed, err := s.ledger.DeletePayment(ctx, projectID, groupID, paymentID)
	s.record("delete_payment", err)
	if err != nil {
		return err
	}
	if err := s.attachments.Remove(projectID, removed.Attachment); err != nil {
		s.logger.WarnContext(ctx, "Failed to remove payment attachment",
			log.FieldProjectID, projectID, log.FieldPaymentID, paymentID, log.FieldError, err)
	}
	s.changed(ctx, amqp.OpPaymentDeleted, projectID, groupID, paymentID)
	return nil
}

// UploadAttachment stores r as the payment's attachment, replacing any
// previous one, and returns the stored file name.
func (s *LedgerService) UploadAttachment(ctx context.Context, projectID, groupID, paymentID int, r io.Reader) (string, error) {
	name, err := s.uploadAttachment(ctx, projectID, groupID, paymentID, r)
	s.record("upload_attachment", err)
	if err != nil {
		return "", err
	}
	s.changed(ctx, amqp.OpAttachmentAdded, projectID, groupID, paymentID)
	return name, nil
}

func (s *LedgerService) uploadAttachment(ctx context.Context, projectID, groupID, paymentID int, r io.Reader) (string, error) {
	p, err := s.ledger.GetPayment(ctx, projectID, groupID, paymentID)
	if err != nil {
		return "", err
	}
	data, err := s.attachments.ReadUpload(r)
	if err != nil {
		return "", err
	}
	name, err := s.attachments.Put(projectID, groupID, paymentID, data)
	if err != nil {
		return "", err
	}
	if err := s.ledger.SetAttachment(ctx, projectID, groupID, paymentID, name); err != nil {
		// The record still names the previous file; drop the new one unless
		// it overwrote that file in place.
		if name != p.Attachment {
			if rmErr := s.attachments.Remove(projectID, name); rmErr != nil {
				s.logger.WarnContext(ctx, "Failed to remove unrecorded attachment",
					log.FieldProjectID, projectID, log.FieldPaymentID, paymentID, log.FieldError, rmErr)
			}
		}
		return "", err
	}
	if p.Attachment != "" && p.Attachment != name {
		if err := s.attachments.Remove(projectID, p.Attachment); err != nil {
			s.logger.WarnContext(ctx, "Failed to remove replaced attachment",
				log.FieldProjectID, projectID, log.FieldPaymentID, paymentID, log.FieldError, err)
		}
	}
	return name, nil
}

// OpenAttachment returns the payment's attachment file and its stored name.
// The caller closes the file.
func (s *LedgerService) OpenAttachment(ctx context.Context, projectID, groupID, paymentID int) (*os.File, string, error) {
	p, err := s.ledger.GetPayment(ctx, projectID, groupID, paymentID)
	if err == nil && p.Attachment == "" {
		err = fmt.Errorf("payment %d has no attachment: %w", paymentID, core.ErrNotFound)
	}
	if err != nil {
		s.record("get_attachment", err)
		return nil, "", err
	}
	f, err := s.attachments.Open(projectID, p.Attachment)
	s.record("get_attachment", err)
	if err != nil {
		return nil, "", err
	}
	return f, p.Attachment, nil
}

func (s *LedgerService) DeleteAttachment(ctx context.Context, projectID, groupID, paymentID int) error {
	err := s.deleteAttachment(ctx, projectID, groupID, paymentID)
	s.record("delete_attachment", err)
	if err != nil {
		return err
	}
	s.changed(ctx, amqp.OpAttachmentRemove, projectID, groupID, paymentID)
	return nil
}

func (s *LedgerService) deleteAttachment(ctx context.Context, projectID, groupID, paymentID int) error {
	p, err := s.ledger.GetPayment(ctx, projectID, groupID, paymentID)
	if err != nil {
		return err
	}
	if p.Attachment == "" {
		return fmt.Errorf("payment %d has no attachment: %w", paymentID, core.ErrNotFound)
	}
	if err := s.attachments.Remove(projectID, p.Attachment); err != nil {
		return err
	}
	return s.ledger.SetAttachment(ctx, projectID, groupID, paymentID, "")
}

// Snapshots lists the history of a live project, newest first.
func (s *LedgerService) Snapshots(ctx context.Context, projectID int) ([]history.Snapshot, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if _, err := s.ledger.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.history.List(ctx, s.ProjectDir(projectID))
}

// Snapshot records the project's current state. created is false when nothing changed.
func (s *LedgerService) Snapshot(ctx context.Context, projectID int, message string) (history.Snapshot, bool, error) {
	if s.history == nil {
		return history.Snapshot{}, false, ErrHistoryDisabled
	}
	if _, err := s.ledger.GetProject(ctx, projectID); err != nil {
		return history.Snapshot{}, false, err
	}
	dir := s.ProjectDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return history.Snapshot{}, false, fmt.Errorf("create project directory: %w", err)
	}
	return s.history.Snapshot(ctx, dir, message)
}

// RestoreSnapshot puts a project's paygroups and attachments back to an
// earlier snapshot. Only the file backend keeps paygroups in the project
// directory; other backends get ErrRestoreUnsupported.
func (s *LedgerService) RestoreSnapshot(ctx context.Context, projectID int, snapshotID string) (history.Snapshot, error) {
	if s.history == nil {
		return history.Snapshot{}, ErrHistoryDisabled
	}
	if _, ok := s.ledger.(*file.Store); !ok {
		return history.Snapshot{}, ErrRestoreUnsupported
	}
	if _, err := s.ledger.GetProject(ctx, projectID); err != nil {
		return history.Snapshot{}, err
	}
	snap, err := s.history.Restore(ctx, s.ProjectDir(projectID), snapshotID)
	s.record("restore_snapshot", err)
	if err != nil {
		return history.Snapshot{}, err
	}
	s.invalidate(projectID)
	s.logger.InfoContext(ctx, "Project restored from snapshot",
		log.FieldProjectID, projectID, log.FieldSnapshotID, snapshotID)
	return snap, nil
}

// Close closes storage and the publisher if it supports closing.
func (s *LedgerService) Close() error {
	var errs []error

	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}

	return nil
}
