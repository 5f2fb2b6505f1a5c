package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/internal/reports/export"
)

// exportLimit bounds a single register export.
const exportLimit = 5000

var statusTitles = map[Status]string{
	StatusDraft:           "Dự thảo",
	StatusPendingApproval: "Chờ phê duyệt",
	StatusApproved:        "Đã phê duyệt",
	StatusRejected:        "Bị từ chối",
	StatusSent:            "Đã phát hành",
	StatusPending:         "Chờ xử lý",
	StatusProcessing:      "Đang xử lý",
	StatusCompleted:       "Hoàn thành",
}

var priorityTitles = map[Priority]string{
	PriorityNormal:     "Thường",
	PriorityUrgent:     "Khẩn",
	PriorityVeryUrgent: "Thượng khẩn",
}

func (s Status) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

func (p Priority) Title() string {
	if t, ok := priorityTitles[p]; ok {
		return t
	}
	return string(p)
}

// ExportRegister writes the outgoing or incoming register matching filter.
func (s *Service) ExportRegister(ctx context.Context, actor access.Actor, kind audit.Kind, format export.Format, filter ListFilter, w io.Writer) error {
	var (
		table export.Table
		err   error
	)
	switch kind {
	case audit.KindOutgoing:
		if err := access.Check(access.ResourceOutgoing, access.OpExport, actor); err != nil {
			return err
		}
		table, err = s.outgoingRegister(ctx, filter)
	case audit.KindIncoming:
		if err := access.Check(access.ResourceIncoming, access.OpExport, actor); err != nil {
			return err
		}
		table, err = s.incomingRegister(ctx, filter)
	default:
		return fmt.Errorf("%w: no register for %q documents", apperr.ErrValidation, kind)
	}
	if err != nil {
		return err
	}
	return export.Render(w, format, table, s.pdf)
}

// collect pages through a list query up to exportLimit rows.
func collect[T any](filter ListFilter, list func(ListFilter) ([]T, int64, error)) ([]T, error) {
	var out []T
	filter.PageSize = 200
	for filter.Page = 1; len(out) < exportLimit; filter.Page++ {
		rows, total, err := list(filter)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < filter.PageSize || int64(len(out)) >= total {
			break
		}
	}
	return out, nil
}

func (s *Service) outgoingRegister(ctx context.Context, filter ListFilter) (export.Table, error) {
	docs, err := collect(filter, func(f ListFilter) ([]OutgoingDocument, int64, error) {
		return s.repo.ListOutgoing(ctx, f)
	})
	if err != nil {
		return export.Table{}, err
	}
	table := export.Table{
		Title:   "Sổ văn bản đi",
		Columns: []string{"Số", "Ngày ban hành", "Loại", "Trích yếu", "Nơi nhận", "Trạng thái"},
	}
	for _, d := range docs {
		table.AddRow(d.numberOrEmpty(), d.IssuedDate, d.DocumentType, d.Title, d.Recipients, d.Status.Title())
	}
	return table, nil
}

func (s *Service) incomingRegister(ctx context.Context, filter ListFilter) (export.Table, error) {
	docs, err := collect(filter, func(f ListFilter) ([]IncomingDocument, int64, error) {
		return s.repo.ListIncoming(ctx, f)
	})
	if err != nil {
		return export.Table{}, err
	}
	table := export.Table{
		Title:   "Sổ văn bản đến",
		Columns: []string{"Số", "Ngày đến", "Cơ quan ban hành", "Trích yếu", "Độ khẩn", "Hạn xử lý", "Trạng thái"},
	}
	for _, d := range docs {
		table.AddRow(d.Number, d.ReceivedAt, d.Sender, d.Title, d.Priority.Title(), d.Deadline, d.Status.Title())
	}
	return table, nil
}

// IncomingSlip renders the processing sheet of one incoming document as PDF.
func (s *Service) IncomingSlip(ctx context.Context, id uint) ([]byte, error) {
	doc, err := s.GetIncoming(ctx, id)
	if err != nil {
		return nil, err
	}

	userIDs := []uint{doc.CreatorID}
	for _, a := range doc.Assignments {
		userIDs = append(userIDs, a.UserID)
	}
	for _, h := range doc.History {
		userIDs = append(userIDs, h.ActorID)
	}
	names := s.userNames(ctx, dedupe(userIDs))

	department := ""
	if doc.AssignedDepartmentID != nil {
		if dept, err := s.dir.GetDepartment(ctx, *doc.AssignedDepartmentID); err == nil {
			department = dept.Name
		}
	}
	deadline := ""
	if doc.Deadline != nil {
		deadline = doc.Deadline.Format("02/01/2006")
	}

	assignments := export.Table{
		Title:   "Phân công xử lý",
		Columns: []string{"Người xử lý", "Ngày giao", "Trạng thái", "Hoàn thành"},
	}
	for _, a := range doc.Assignments {
		status := "Đang xử lý"
		if a.Status == AssignmentCompleted {
			status = "Hoàn thành"
		}
		assignments.AddRow(names[a.UserID], a.CreatedAt, status, a.CompletedAt)
	}
	history := export.Table{
		Title:   "Quá trình xử lý",
		Columns: []string{"Thời gian", "Người thực hiện", "Thao tác", "Ý kiến"},
	}
	for _, h := range doc.History {
		actor := h.ActorName
		if actor == "" {
			actor = names[h.ActorID]
		}
		history.AddRow(h.CreatedAt, actor, h.Action, h.Description)
	}

	g := export.NewPDFGenerator(s.pdf)
	g.GenerateSlip(export.Slip{
		Title: "Phiếu xử lý văn bản đến",
		Fields: [][2]string{
			{"Số văn bản", doc.Number},
			{"Cơ quan ban hành", doc.Sender},
			{"Trích yếu", doc.Title},
			{"Ngày đến", doc.ReceivedAt.Format("02/01/2006")},
			{"Độ khẩn", doc.Priority.Title()},
			{"Người tiếp nhận", names[doc.CreatorID]},
			{"Đơn vị xử lý", department},
			{"Hạn xử lý", deadline},
			{"Ý kiến chỉ đạo", strings.TrimSpace(doc.ProcessingNote)},
			{"Trạng thái", doc.Status.Title()},
		},
		Sections:    []export.Table{assignments, history},
		GeneratedAt: s.now(),
	})
	return g.OutputToBytes()
}

func (s *Service) userNames(ctx context.Context, ids []uint) map[uint]string {
	names := make(map[uint]string, len(ids))
	users, err := s.dir.GetUsers(ctx, ids)
	if err != nil {
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}
