package documents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/pkg/search"
)

var searchableKinds = map[string]bool{
	string(audit.KindIncoming): true,
	string(audit.KindOutgoing): true,
	string(audit.KindInternal): true,
}

// Search queries the full-text index, falling back to title matching in the
// database when no index is configured or the index fails.
func (s *Service) Search(ctx context.Context, q search.Query) ([]search.Document, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: search text is required", apperr.ErrValidation)
	}
	for _, k := range q.Kinds {
		if !searchableKinds[k] {
			return nil, fmt.Errorf("%w: unknown document kind %q", apperr.ErrValidation, k)
		}
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	if s.indexer != nil {
		docs, err := s.indexer.Search(ctx, q)
		if err == nil {
			return docs, nil
		}
		s.logger.Warn("Search index unavailable, using database", zap.Error(err))
	}
	return s.repo.SearchTitles(ctx, q)
}

// Reindex pushes every document to the index. Used after the index is
// recreated.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.indexer == nil {
		return 0, fmt.Errorf("%w: search index is not configured", apperr.ErrUnavailable)
	}
	n := 0
	for p := 1; ; p++ {
		f := ListFilter{Page: p, PageSize: 200}
		incoming, _, err := s.repo.ListIncoming(ctx, f)
		if err != nil {
			return n, err
		}
		outgoing, _, err := s.repo.ListOutgoing(ctx, f)
		if err != nil {
			return n, err
		}
		internal, _, err := s.repo.ListInternal(ctx, f)
		if err != nil {
			return n, err
		}
		for i := range incoming {
			n += s.put(ctx, incomingSearchDoc(&incoming[i]))
		}
		for i := range outgoing {
			n += s.put(ctx, outgoingSearchDoc(&outgoing[i]))
		}
		for i := range internal {
			n += s.put(ctx, internalSearchDoc(&internal[i]))
		}
		if len(incoming) < f.PageSize && len(outgoing) < f.PageSize && len(internal) < f.PageSize {
			return n, nil
		}
	}
}

func (s *Service) put(ctx context.Context, doc search.Document) int {
	if err := s.indexer.Put(ctx, doc); err != nil {
		s.logger.Warn("Failed to index document", zap.String("key", doc.Key()), zap.Error(err))
		return 0
	}
	return 1
}
