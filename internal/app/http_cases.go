package app

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/storage"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/Wesp1nzee/crm-deploy/internal/util"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *HTTPServer) caseRoutes(r chi.Router) {
	r.Get("/cases", s.handleListCases)
	r.Post("/cases", s.handleCreateCase)
	r.Get("/cases/suggest", s.handleSuggestCases)
	r.Get("/cases/financial-summary", s.handleFinancialSummary)
	r.Get("/cases/{caseID}", s.handleGetCase)
	r.Patch("/cases/{caseID}", s.handleUpdateCase)
	r.Delete("/cases/{caseID}", s.handleDeleteCase)
	r.Get("/cases/{caseID}/download-documents", s.handleCaseArchive)
	r.Get("/cases/{caseID}/report", s.handleCaseReport)
}

// caseFilterParser collects case list parameters. The first malformed value
// is kept in err.
type caseFilterParser struct {
	q   url.Values
	err error
}

func (p *caseFilterParser) date(names ...string) *time.Time {
	raw := queryFirst(p.q, names...)
	if raw == "" || p.err != nil {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		p.err = badRequest(names[0] + " must be a date in YYYY-MM-DD format")
		return nil
	}
	return &t
}

func (p *caseFilterParser) amount(names ...string) *decimal.Decimal {
	raw := queryFirst(p.q, names...)
	if raw == "" || p.err != nil {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.err = badRequest(names[0] + " must be a number")
		return nil
	}
	return &d
}

func (p *caseFilterParser) id(names ...string) string {
	raw := queryFirst(p.q, names...)
	if raw != "" && p.err == nil && !util.IsID(raw) {
		p.err = badRequest(names[0] + " must be a UUID")
	}
	return raw
}

func statusList(q url.Values) []string {
	out := make([]string, 0)
	for _, v := range q["status"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseCaseFilter accepts both the *_from/*_to names and the older
// start_date/end_date style spellings.
func parseCaseFilter(r *http.Request) (store.CaseFilter, error) {
	p := &caseFilterParser{q: r.URL.Query()}
	f := store.CaseFilter{
		Statuses:           statusList(p.q),
		AssignedUserID:     p.id("assigned_user_id", "expert_id"),
		ClientID:           p.id("client_id"),
		StartDateFrom:      p.date("start_date_from", "start_date"),
		StartDateTo:        p.date("start_date_to", "end_date"),
		DeadlineFrom:       p.date("deadline_from", "deadline_start_date"),
		DeadlineTo:         p.date("deadline_to", "deadline_end_date"),
		CompletionDateFrom: p.date("completion_date_from", "completion_start_date"),
		CompletionDateTo:   p.date("completion_date_to", "completion_end_date"),
		CreatedFrom:        p.date("created_from"),
		CreatedTo:          p.date("created_to"),
		MinCost:            p.amount("min_cost"),
		MaxCost:            p.amount("max_cost"),
		MinDebt:            p.amount("min_debt", "min_remaining_debt"),
		MaxDebt:            p.amount("max_debt", "max_remaining_debt"),
		Number:             queryFirst(p.q, "number"),
		CaseNumber:         queryFirst(p.q, "case_number"),
		Authority:          queryFirst(p.q, "authority"),
		CaseType:           queryFirst(p.q, "case_type"),
		ObjectType:         queryFirst(p.q, "object_type"),
		ObjectAddress:      queryFirst(p.q, "object_address"),
		Search:             queryFirst(p.q, "search"),
		SortBy:             queryFirst(p.q, "sort_by", "sort_field"),
		SortOrder:          queryFirst(p.q, "sort_order"),
		Page:               queryInt(r, "page"),
		Limit:              queryInt(r, "limit"),
	}
	for _, st := range f.Statuses {
		if !isCaseStatus(st) {
			return store.CaseFilter{}, badRequest("Unknown case status " + st)
		}
	}
	return f, p.err
}

func isCaseStatus(v string) bool {
	for _, st := range store.CaseStatuses {
		if st == v {
			return true
		}
	}
	return false
}

func (s *HTTPServer) handleListCases(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCaseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.ListCases(r.Context(), actorFrom(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var body CreateCaseInput
	if !s.decode(w, r, &body) {
		return
	}
	created, err := s.service.CreateCase(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleSuggestCases(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.SuggestCases(r.Context(), actorFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleFinancialSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.FinancialSummary(r.Context(), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(w, r, "caseID")
	if !ok {
		return
	}
	detail, err := s.service.GetCaseDetail(r.Context(), actorFrom(r), caseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(w, r, "caseID")
	if !ok {
		return
	}
	var body UpdateCaseInput
	if !s.decode(w, r, &body) {
		return
	}
	updated, err := s.service.UpdateCase(r.Context(), actorFrom(r), caseID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	// Role is checked before the id so experts get 403 for any path.
	if err := requireCaseWrite(actorFrom(r), "delete"); err != nil {
		s.fail(w, r, err)
		return
	}
	caseID, ok := pathID(w, r, "caseID")
	if !ok {
		return
	}
	if err := s.service.DeleteCase(r.Context(), actorFrom(r), caseID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCaseArchive(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(w, r, "caseID")
	if !ok {
		return
	}
	name, data, err := s.service.CaseArchive(r.Context(), actorFrom(r), caseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, zipDisposition(name), "application/zip", data)
}

func (s *HTTPServer) handleCaseReport(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(w, r, "caseID")
	if !ok {
		return
	}
	result, err := s.service.CaseReport(r.Context(), actorFrom(r), caseID, r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, storage.ContentDisposition(result.Filename, true), result.MimeType, result.Data)
}
