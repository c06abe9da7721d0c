package app

import (
	"context"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/search"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type SearchInput struct {
	Query  string
	Type   string
	Limit  int
	Offset int
}

// Search looks up cases and clients of the caller's company. Experts only get
// case hits for cases assigned to them.
func (s *Service) Search(ctx context.Context, actor Actor, input SearchInput) (search.Response, error) {
	text := strings.TrimSpace(input.Query)
	if text == "" {
		return search.Response{}, badRequest("Query must not be empty")
	}
	kind, ok := search.ParseResultType(input.Type)
	if !ok {
		return search.Response{}, badRequest("type must be case or client")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: kind,
		CompanyID:  actor.CompanyID,
		AssigneeID: actor.expertID(),
		Limit:      limit,
		Offset:     offset,
	}), nil
}
