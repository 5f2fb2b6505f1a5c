package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/pkg/storage"
)

// MaxAttachmentSize caps a single upload.
const MaxAttachmentSize = 25 << 20

var attachResources = map[audit.Kind]access.Resource{
	audit.KindOutgoing: access.ResourceOutgoing,
	audit.KindInternal: access.ResourceInternal,
	audit.KindIncoming: access.ResourceIncoming,
}

// UploadRequest describes one file posted to a document.
type UploadRequest struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DownloadLink is a short-lived presigned URL.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) attachmentStore() (*AttachmentStore, error) {
	if s.files == nil {
		return nil, fmt.Errorf("%w: attachment storage is not configured", apperr.ErrUnavailable)
	}
	return s.files, nil
}

// AddAttachment uploads the blob first and then records it. A failed insert
// removes the blob again.
func (s *Service) AddAttachment(ctx context.Context, actor access.Actor, kind audit.Kind, documentID uint, req UploadRequest) (*Attachment, error) {
	if err := s.checkAttachmentChange(ctx, s.repo, actor, kind, documentID, access.OpAttach); err != nil {
		return nil, err
	}
	store, err := s.attachmentStore()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: file name is required", apperr.ErrValidation)
	}
	if req.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrValidation, MaxAttachmentSize)
	}

	key := store.Key(kind, documentID, req.Name)
	size, err := store.Put(ctx, key, req.ContentType, io.LimitReader(req.Body, MaxAttachmentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}
	if size > MaxAttachmentSize {
		s.removeBlob(ctx, key)
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrValidation, MaxAttachmentSize)
	}

	att := &Attachment{
		DocumentKind: kind,
		DocumentID:   documentID,
		Name:         cleanFileName(req.Name),
		StoragePath:  key,
		Size:         size,
		ContentType:  req.ContentType,
		UploadedBy:   actor.ID,
		UploadedAt:   s.now(),
	}
	// The upload may be slow; the document could have left its editable
	// state meanwhile.
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		if err := s.checkAttachmentChange(ctx, tx, actor, kind, documentID, access.OpAttach); err != nil {
			return err
		}
		return tx.AddAttachment(ctx, att)
	})
	if err != nil {
		s.removeBlob(ctx, key)
		return nil, err
	}
	s.logger.Info("Attachment added",
		zap.String("kind", string(kind)),
		zap.Uint("document_id", documentID),
		zap.Uint("attachment_id", att.ID),
		zap.Int64("size", size))
	return att, nil
}

// checkAttachmentChange applies the attachment rules. Outgoing and internal
// documents take file changes from their creator while still a draft.
// Incoming documents take them from clerks, approvers and assignees until
// processing is completed.
func (s *Service) checkAttachmentChange(ctx context.Context, repo Repository, actor access.Actor, kind audit.Kind, id uint, op access.Operation) error {
	resource, ok := attachResources[kind]
	if !ok {
		return fmt.Errorf("%w: documents of kind %q do not take attachments", apperr.ErrValidation, kind)
	}
	switch kind {
	case audit.KindOutgoing:
		doc, err := repo.GetOutgoing(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(resource, op, actor); err != nil {
			return err
		}
		return draftOwner(actor, &doc.Approval, outgoingKind.what)
	case audit.KindInternal:
		doc, err := repo.GetInternal(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(resource, op, actor); err != nil {
			return err
		}
		return draftOwner(actor, &doc.Approval, internalKind.what)
	default:
		doc, err := repo.GetIncoming(ctx, id)
		if err != nil {
			return err
		}
		if err := access.Check(resource, op, actor); err != nil {
			return err
		}
		if !access.Allowed(access.ResourceIncoming, access.OpCreate, actor) &&
			!access.Allowed(access.ResourceIncoming, access.OpComplete, actor) {
			assignments, err := repo.ListAssignments(ctx, id)
			if err != nil {
				return err
			}
			if !assigned(assignments, actor.ID) {
				return fmt.Errorf("%w: only clerks, approvers and assignees may change files of this document", apperr.ErrForbidden)
			}
		}
		if doc.Status == StatusCompleted {
			return fmt.Errorf("%w: %s is %s", apperr.ErrInvalidTransition, incomingWhat, doc.Status)
		}
		return nil
	}
}

func draftOwner(actor access.Actor, a *Approval, what string) error {
	if err := ownerOrAdmin(actor, a.CreatorID, what); err != nil {
		return err
	}
	return requireStatus(what, a.Status, StatusDraft)
}

func (s *Service) ListAttachments(ctx context.Context, kind audit.Kind, documentID uint) ([]Attachment, error) {
	if err := s.exists(ctx, kind, documentID); err != nil {
		return nil, err
	}
	return s.repo.ListAttachments(ctx, kind, documentID)
}

func (s *Service) AttachmentURL(ctx context.Context, id uint) (*DownloadLink, error) {
	store, err := s.attachmentStore()
	if err != nil {
		return nil, err
	}
	att, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	url, expires, err := store.URL(ctx, att.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to sign attachment url: %w", err)
	}
	return &DownloadLink{URL: url, ExpiresAt: expires}, nil
}

// OpenAttachment streams the blob, for deployments without presigning.
func (s *Service) OpenAttachment(ctx context.Context, id uint) (*Attachment, io.ReadCloser, error) {
	store, err := s.attachmentStore()
	if err != nil {
		return nil, nil, err
	}
	att, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := store.Open(ctx, att.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, fmt.Errorf("%w: attachment %d content", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}
	return att, body, nil
}

// DeleteAttachment follows the rules of AddAttachment. On top of them only
// the uploader or an admin may remove a file.
func (s *Service) DeleteAttachment(ctx context.Context, actor access.Actor, kind audit.Kind, documentID, id uint) error {
	var att *Attachment
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		if att, err = tx.GetAttachment(ctx, id); err != nil {
			return err
		}
		if att.DocumentKind != kind || att.DocumentID != documentID {
			return fmt.Errorf("%w: attachment %d of %s %d", apperr.ErrNotFound, id, kind, documentID)
		}
		if err := s.checkAttachmentChange(ctx, tx, actor, kind, documentID, access.OpDetach); err != nil {
			return err
		}
		if att.UploadedBy != actor.ID && !actor.IsAdmin() {
			return fmt.Errorf("%w: only the uploader may delete this attachment", apperr.ErrForbidden)
		}
		return tx.DeleteAttachment(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Attachment deleted",
		zap.String("kind", string(kind)),
		zap.Uint("document_id", documentID),
		zap.Uint("attachment_id", id))
	s.purgeFiles(ctx, []Attachment{*att})
	return nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.files.Remove(ctx, key); err != nil {
		s.logger.Warn("Failed to remove orphaned blob", zap.String("key", key), zap.Error(err))
	}
}
