package documents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/audit"
)

// approvalRecord is a document on the draft/approval/issue chain.
type approvalRecord interface {
	versioned
	approval() *Approval
	ref() (audit.Kind, uint)
	// issue stamps the number, issuer and send time.
	issue(number string, by uint, at time.Time)
	numberOrEmpty() string
	typeCode() string
}

// approvalKind binds the generic chain to one document table.
type approvalKind struct {
	resource access.Resource
	what     string
	load     func(ctx context.Context, repo Repository, id uint) (approvalRecord, error)
	save     func(ctx context.Context, repo Repository, rec approvalRecord) error
}

var outgoingKind = approvalKind{
	resource: access.ResourceOutgoing,
	what:     "outgoing document",
	load: func(ctx context.Context, repo Repository, id uint) (approvalRecord, error) {
		doc, err := repo.GetOutgoing(ctx, id)
		if err != nil {
			return nil, err
		}
		return doc, nil
	},
	save: func(ctx context.Context, repo Repository, rec approvalRecord) error {
		return repo.SaveOutgoing(ctx, rec.(*OutgoingDocument))
	},
}

var internalKind = approvalKind{
	resource: access.ResourceInternal,
	what:     "internal document",
	load: func(ctx context.Context, repo Repository, id uint) (approvalRecord, error) {
		doc, err := repo.GetInternal(ctx, id)
		if err != nil {
			return nil, err
		}
		return doc, nil
	},
	save: func(ctx context.Context, repo Repository, rec approvalRecord) error {
		return repo.SaveInternal(ctx, rec.(*InternalDocument))
	},
}

// ReviewRequest is the body of approve and reject.
type ReviewRequest struct {
	Comment string `json:"comment"`
}

// IssueRequest is the body of issue/publish. An empty number is generated.
type IssueRequest struct {
	Number     string     `json:"number"`
	IssuedDate *time.Time `json:"issued_date"`
}

// step is one guarded move along the approval chain.
type step struct {
	op        access.Operation
	to        Status
	action    string
	comment   string
	ownerOnly bool
	apply     func(rec approvalRecord, actor access.Actor, now time.Time)
}

func (s *Service) advance(ctx context.Context, kind approvalKind, actor access.Actor, id uint, st step) (approvalRecord, error) {
	var rec approvalRecord
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		rec, err = kind.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.Check(kind.resource, st.op, actor); err != nil {
			return err
		}
		a := rec.approval()
		if st.ownerOnly {
			if err := ownerOnly(actor, a.CreatorID, kind.what); err != nil {
				return err
			}
		}
		from := a.Status
		if err := requireTransition(approvalFlow, kind.what, from, st.to); err != nil {
			return err
		}

		now := s.now()
		a.Status = st.to
		if st.apply != nil {
			st.apply(rec, actor, now)
		}
		if err := kind.save(ctx, tx, rec); err != nil {
			return err
		}

		k, docID := rec.ref()
		entry := audit.NewEntry(k, docID, st.op, st.action, actor, now).
			Transition(string(from), string(st.to)).
			Describe(st.comment)
		return tx.AppendHistory(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) submit(ctx context.Context, kind approvalKind, actor access.Actor, id uint) (approvalRecord, error) {
	return s.advance(ctx, kind, actor, id, step{
		op:        access.OpSubmit,
		to:        StatusPendingApproval,
		action:    audit.ActionSubmit,
		ownerOnly: true,
	})
}

func (s *Service) approve(ctx context.Context, kind approvalKind, actor access.Actor, id uint, req ReviewRequest) (approvalRecord, error) {
	tier := access.Tier(kind.resource, access.OpApprove, actor)
	return s.advance(ctx, kind, actor, id, step{
		op:      access.OpApprove,
		to:      StatusApproved,
		action:  audit.ApprovalAction(tier),
		comment: strings.TrimSpace(req.Comment),
		apply: func(rec approvalRecord, actor access.Actor, now time.Time) {
			a := rec.approval()
			approver := actor.ID
			a.ApproverID = &approver
			a.ApprovedAt = &now
		},
	})
}

func (s *Service) reject(ctx context.Context, kind approvalKind, actor access.Actor, id uint, req ReviewRequest) (approvalRecord, error) {
	tier := access.Tier(kind.resource, access.OpReject, actor)
	return s.advance(ctx, kind, actor, id, step{
		op:      access.OpReject,
		to:      StatusDraft,
		action:  audit.RejectionAction(tier),
		comment: strings.TrimSpace(req.Comment),
	})
}

func (s *Service) issue(ctx context.Context, kind approvalKind, actor access.Actor, id uint, req IssueRequest) (approvalRecord, error) {
	return s.advance(ctx, kind, actor, id, step{
		op:     access.OpIssue,
		to:     StatusSent,
		action: audit.ActionIssue,
		apply: func(rec approvalRecord, actor access.Actor, now time.Time) {
			number := strings.TrimSpace(req.Number)
			if number == "" {
				number = rec.numberOrEmpty()
			}
			if number == "" {
				_, docID := rec.ref()
				number = fmt.Sprintf("%d/%d/%s", docID, now.Year(), rec.typeCode())
			}
			at := now
			if req.IssuedDate != nil {
				at = *req.IssuedDate
			}
			rec.issue(number, actor.ID, at)
			sent := now
			rec.approval().SentAt = &sent
		},
	})
}

// typeCode abbreviates a document type for generated numbers, e.g.
// "Công văn" -> "CV". Unknown or empty types fall back to "VB".
func typeCode(documentType string) string {
	if code, ok := typeCodes[strings.ToLower(strings.TrimSpace(documentType))]; ok {
		return code
	}
	var b strings.Builder
	for _, w := range strings.Fields(documentType) {
		r := []rune(foldASCII(w))
		if len(r) > 0 {
			b.WriteRune(r[0])
		}
	}
	if b.Len() == 0 {
		return "VB"
	}
	return strings.ToUpper(b.String())
}

var typeCodes = map[string]string{
	"công văn":   "CV",
	"quyết định": "QĐ",
	"thông báo":  "TB",
	"tờ trình":   "TTr",
	"báo cáo":    "BC",
	"kế hoạch":   "KH",
	"giấy mời":   "GM",
}

func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 'đ' || r == 'Đ' {
			return 'D'
		}
		return r
	}, s)
}

// issue helpers on each document type

func (d *OutgoingDocument) issue(number string, by uint, at time.Time) {
	d.Number = &number
	d.IssuedByID = &by
	d.IssuedDate = &at
}

func (d *OutgoingDocument) numberOrEmpty() string {
	if d.Number == nil {
		return ""
	}
	return *d.Number
}

func (d *OutgoingDocument) typeCode() string { return typeCode(d.DocumentType) }

func (d *InternalDocument) issue(number string, by uint, at time.Time) {
	d.Number = &number
	d.PublishedByID = &by
	d.IssuedDate = &at
}

func (d *InternalDocument) numberOrEmpty() string {
	if d.Number == nil {
		return ""
	}
	return *d.Number
}

func (d *InternalDocument) typeCode() string { return typeCode(d.DocumentType) }
