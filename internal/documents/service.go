package documents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/reports/export"
	"document-portal/portal-backend/pkg/search"
)

// Directory resolves users and departments referenced by documents
type Directory interface {
	GetUser(ctx context.Context, id uint) (*directory.User, error)
	GetUsers(ctx context.Context, ids []uint) ([]directory.User, error)
	GetDepartment(ctx context.Context, id uint) (*directory.Department, error)
	GetDepartmentByName(ctx context.Context, name string) (*directory.Department, error)
	ListUsers(ctx context.Context, filter directory.UserFilter) ([]directory.User, error)
	ListUsersWithRole(ctx context.Context, role access.Role, departmentID *uint) ([]directory.User, error)
}

// Indexer keeps the full-text index in step with the store
type Indexer interface {
	Put(ctx context.Context, doc search.Document) error
	Delete(ctx context.Context, kind string, id uint) error
	Search(ctx context.Context, q search.Query) ([]search.Document, error)
}

// Service is the document workflow engine. Every mutating operation runs in
// one transaction: load, role gate, ownership, state precondition, versioned
// save, history. Notifications and indexing happen after commit.
type Service struct {
	repo     Repository
	dir      Directory
	notifier notifications.Notifier
	indexer  Indexer
	files    *AttachmentStore
	pdf      export.PDFOptions
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n notifications.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithIndexer(i Indexer) Option { return func(s *Service) { s.indexer = i } }

func WithAttachmentStore(store *AttachmentStore) Option { return func(s *Service) { s.files = store } }

// WithPDFOptions sets the page and font settings of generated PDFs.
func WithPDFOptions(opts export.PDFOptions) Option { return func(s *Service) { s.pdf = opts } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, dir Directory, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, dir: dir, logger: logger, now: time.Now, pdf: export.DefaultPDFOptions()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns the audit trail of one document, 404 if it does not exist.
func (s *Service) History(ctx context.Context, kind audit.Kind, id uint) ([]audit.HistoryEntry, error) {
	if err := s.exists(ctx, kind, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, kind, id)
}

func (s *Service) exists(ctx context.Context, kind audit.Kind, id uint) error {
	var err error
	switch kind {
	case audit.KindOutgoing:
		_, err = s.repo.GetOutgoing(ctx, id)
	case audit.KindInternal:
		_, err = s.repo.GetInternal(ctx, id)
	case audit.KindIncoming:
		_, err = s.repo.GetIncoming(ctx, id)
	case audit.KindResponse:
		_, err = s.repo.GetResponse(ctx, id)
	default:
		err = fmt.Errorf("%w: unknown document kind %q", apperr.ErrValidation, kind)
	}
	return err
}

// ownerOrAdmin rejects actors that neither created the record nor administer.
func ownerOrAdmin(actor access.Actor, creatorID uint, what string) error {
	if actor.ID == creatorID || actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: only the creator may change this %s", apperr.ErrForbidden, what)
}

func ownerOnly(actor access.Actor, creatorID uint, what string) error {
	if actor.ID == creatorID {
		return nil
	}
	return fmt.Errorf("%w: only the creator may change this %s", apperr.ErrForbidden, what)
}

func (s *Service) notify(ctx context.Context, ev notifications.Event) {
	notifications.Dispatch(ctx, s.notifier, s.logger, ev)
}

func (s *Service) index(ctx context.Context, doc search.Document) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Put(ctx, doc); err != nil {
		s.logger.Warn("Failed to index document", zap.String("key", doc.Key()), zap.Error(err))
	}
}

func (s *Service) unindex(ctx context.Context, kind audit.Kind, id uint) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Delete(ctx, string(kind), id); err != nil {
		s.logger.Warn("Failed to remove document from index", zap.String("kind", string(kind)), zap.Uint("id", id), zap.Error(err))
	}
}

func (s *Service) approverIDs(ctx context.Context, departmentID *uint) []uint {
	ids, err := directory.ReviewerIDs(ctx, s.dir, departmentID)
	if err != nil {
		s.logger.Warn("Failed to list reviewers", zap.Error(err))
	}
	return ids
}

func (s *Service) usersWithRole(ctx context.Context, role access.Role) []uint {
	users, err := s.dir.ListUsersWithRole(ctx, role, nil)
	if err != nil {
		s.logger.Warn("Failed to list users", zap.String("role", string(role)), zap.Error(err))
		return nil
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
