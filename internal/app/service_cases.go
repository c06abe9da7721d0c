package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/export"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/search"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/Wesp1nzee/crm-deploy/internal/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateCaseInput struct {
	ClientID           string           `json:"client_id" validate:"required,uuid"`
	Number             string           `json:"number" validate:"required,max=50"`
	CaseNumber         string           `json:"case_number" validate:"required,max=100"`
	Authority          string           `json:"authority" validate:"max=255"`
	CaseType           string           `json:"case_type" validate:"max=100"`
	ObjectType         string           `json:"object_type" validate:"max=100"`
	ObjectAddress      string           `json:"object_address" validate:"max=500"`
	Status             string           `json:"status" validate:"omitempty,oneof=archive in_work debt executed withdrawn cancelled fssp"`
	AssignedUserID     *string          `json:"assigned_user_id" validate:"omitempty,uuid"`
	StartDate          string           `json:"start_date" validate:"required,datetime=2006-01-02"`
	Deadline           string           `json:"deadline" validate:"required,datetime=2006-01-02"`
	CompletionDate     *string          `json:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	Cost               *decimal.Decimal `json:"cost" validate:"required"`
	BankTransferAmount decimal.Decimal  `json:"bank_transfer_amount"`
	CashAmount         decimal.Decimal  `json:"cash_amount"`
	Plaintiff          string           `json:"plaintiff"`
	Defendant          string           `json:"defendant"`
	ExpertPainting     string           `json:"expert_painting"`
	ArchiveStatus      string           `json:"archive_status"`
	Remarks            string           `json:"remarks"`
}

// UpdateCaseInput is a partial update; nil fields are left unchanged.
// AssignedUserID set to "" unassigns the case.
type UpdateCaseInput struct {
	ClientID           *string          `json:"client_id" validate:"omitempty,uuid"`
	Number             *string          `json:"number" validate:"omitempty,min=1,max=50"`
	CaseNumber         *string          `json:"case_number" validate:"omitempty,min=1,max=100"`
	Authority          *string          `json:"authority" validate:"omitempty,max=255"`
	CaseType           *string          `json:"case_type" validate:"omitempty,max=100"`
	ObjectType         *string          `json:"object_type" validate:"omitempty,max=100"`
	ObjectAddress      *string          `json:"object_address" validate:"omitempty,max=500"`
	Status             *string          `json:"status" validate:"omitempty,oneof=archive in_work debt executed withdrawn cancelled fssp"`
	AssignedUserID     *string          `json:"assigned_user_id" validate:"omitempty,uuid"`
	StartDate          *string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Deadline           *string          `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	CompletionDate     *string          `json:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	Cost               *decimal.Decimal `json:"cost"`
	BankTransferAmount *decimal.Decimal `json:"bank_transfer_amount"`
	CashAmount         *decimal.Decimal `json:"cash_amount"`
	RemainingDebt      *decimal.Decimal `json:"remaining_debt"`
	Plaintiff          *string          `json:"plaintiff"`
	Defendant          *string          `json:"defendant"`
	ExpertPainting     *string          `json:"expert_painting"`
	ArchiveStatus      *string          `json:"archive_status"`
	Remarks            *string          `json:"remarks"`
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, badRequest("Invalid date " + v)
	}
	return t, nil
}

func parseDatePtr(v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := parseDate(*v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireCaseWrite(actor Actor, verb string) error {
	if !rbac.Can(actor.Role, rbac.ActionWriteCase) {
		return forbidden("Experts cannot " + verb + " cases")
	}
	return nil
}

// checkCaseRules enforces the invariants shared by create and update.
func checkCaseRules(c store.Case) error {
	if c.Deadline.Before(c.StartDate) {
		return badRequest("Deadline cannot be earlier than the start date")
	}
	for name, v := range map[string]decimal.Decimal{
		"cost":                 c.Cost,
		"bank_transfer_amount": c.BankTransferAmount,
		"cash_amount":          c.CashAmount,
	} {
		if v.IsNegative() {
			return badRequest(name + " cannot be negative")
		}
	}
	if c.Payments().GreaterThan(c.Cost) {
		return badRequest("Total payments cannot exceed the case cost")
	}
	return nil
}

func (s *Service) checkCaseNumbers(ctx context.Context, number, caseNumber, excludeID string) error {
	field, err := s.store.CaseNumberConflict(ctx, number, caseNumber, excludeID)
	if err != nil {
		return err
	}
	switch field {
	case "number":
		return badRequest(fmt.Sprintf("Case with number '%s' already exists", number))
	case "case_number":
		return badRequest(fmt.Sprintf("Case with case number '%s' already exists", caseNumber))
	}
	return nil
}

func (s *Service) checkCaseRefs(ctx context.Context, actor Actor, clientID string, assignee *string) error {
	if _, err := s.store.GetClient(ctx, actor.CompanyID, clientID); err != nil {
		return orNotFound(err, "Client not found")
	}
	if assignee != nil && *assignee != "" {
		if _, err := s.store.GetCompanyUser(ctx, actor.CompanyID, *assignee); err != nil {
			return orNotFound(err, "Assigned user not found")
		}
	}
	return nil
}

func (s *Service) ListCases(ctx context.Context, actor Actor, filter store.CaseFilter) (CaseListView, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, store.DefaultPageSize)
	filter.Page, filter.Limit = page, limit

	result, err := s.store.ListCases(ctx, actor.caseScope(), filter, s.today())
	if err != nil {
		return CaseListView{}, err
	}
	data := make([]CaseView, 0, len(result.Items))
	for _, c := range result.Items {
		data = append(data, caseView(c))
	}
	return CaseListView{
		Data:       data,
		Pagination: newPagination(result.Total, page, limit),
		Summary: CaseSummaryView{
			Active:    result.Summary.Active,
			Overdue:   result.Summary.Overdue,
			Completed: result.Summary.Completed,
		},
	}, nil
}

func (s *Service) SuggestCases(ctx context.Context, actor Actor, q string) ([]CaseSuggestionView, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, badRequest("Query must not be empty")
	}
	items, err := s.store.SuggestCases(ctx, actor.caseScope(), q, suggestLimit)
	if err != nil {
		return nil, err
	}
	out := make([]CaseSuggestionView, 0, len(items))
	for _, item := range items {
		out = append(out, CaseSuggestionView{ID: item.ID, Number: item.Number, CaseNumber: item.CaseNumber})
	}
	return out, nil
}

// FinancialSummary aggregates money over the caller's visible cases. Revenue
// counts every case that is no longer in work.
func (s *Service) FinancialSummary(ctx context.Context, actor Actor) (FinancialSummaryView, error) {
	agg, err := s.store.CaseFinancials(ctx, actor.caseScope(), s.today())
	if err != nil {
		return FinancialSummaryView{}, err
	}
	average := decimal.Zero
	if agg.CompletedCases > 0 {
		average = agg.Revenue.Div(decimal.NewFromInt(int64(agg.CompletedCases))).Round(2)
	}
	return FinancialSummaryView{
		TotalRevenue:    agg.Revenue,
		PendingPayments: agg.PendingPayments,
		PendingAmount:   agg.PendingAmount,
		AverageCaseCost: average,
		TotalCases:      agg.TotalCases,
		CompletedCases:  agg.CompletedCases,
		ActiveCases:     agg.ActiveCases,
		OverdueCases:    agg.OverdueCases,
	}, nil
}

// visibleCase loads a live case the caller may read. Experts only see the
// cases assigned to them; anything else is reported as missing.
func (s *Service) visibleCase(ctx context.Context, actor Actor, caseID string) (store.Case, error) {
	c, err := s.store.GetCase(ctx, actor.caseScope(), caseID)
	if err != nil {
		return store.Case{}, orNotFound(err, "Case not found")
	}
	return c, nil
}

func (s *Service) GetCaseDetail(ctx context.Context, actor Actor, caseID string) (CaseDetailView, error) {
	c, err := s.visibleCase(ctx, actor, caseID)
	if err != nil {
		return CaseDetailView{}, err
	}
	client, err := s.store.GetClient(ctx, actor.CompanyID, c.ClientID)
	if err != nil {
		return CaseDetailView{}, orNotFound(err, "Client not found")
	}
	docs, err := s.store.ListCaseDocuments(ctx, actor.CompanyID, c.ID)
	if err != nil {
		return CaseDetailView{}, err
	}
	mail, err := s.store.ListCaseMail(ctx, c.ID)
	if err != nil {
		return CaseDetailView{}, err
	}

	experts := make([]UserShortView, 0, 1)
	if c.AssignedUserID != nil {
		experts = append(experts, UserShortView{ID: *c.AssignedUserID, Email: c.ExpertEmail, FullName: c.ExpertName})
	}
	events := make([]MailMessageView, 0, len(mail))
	for _, m := range mail {
		events = append(events, mailMessageView(m))
	}
	return CaseDetailView{
		Case:            caseView(c),
		Client:          clientView(client),
		AssignedExperts: experts,
		Documents:       documentViews(docs),
		Events:          events,
	}, nil
}

func (s *Service) CreateCase(ctx context.Context, actor Actor, input CreateCaseInput) (CaseView, error) {
	if err := requireCaseWrite(actor, "create"); err != nil {
		return CaseView{}, err
	}
	if err := validateInput(input); err != nil {
		return CaseView{}, err
	}

	start, err := parseDate(input.StartDate)
	if err != nil {
		return CaseView{}, err
	}
	deadline, err := parseDate(input.Deadline)
	if err != nil {
		return CaseView{}, err
	}
	completion, err := parseDatePtr(input.CompletionDate)
	if err != nil {
		return CaseView{}, err
	}
	status := input.Status
	if status == "" {
		status = store.StatusInWork
	}

	item := store.Case{
		ClientID:           input.ClientID,
		Number:             strings.TrimSpace(input.Number),
		CaseNumber:         strings.TrimSpace(input.CaseNumber),
		Authority:          input.Authority,
		CaseType:           input.CaseType,
		ObjectType:         input.ObjectType,
		ObjectAddress:      input.ObjectAddress,
		Status:             status,
		AssignedUserID:     input.AssignedUserID,
		StartDate:          start,
		Deadline:           deadline,
		CompletionDate:     completion,
		Cost:               *input.Cost,
		BankTransferAmount: input.BankTransferAmount,
		CashAmount:         input.CashAmount,
		Plaintiff:          input.Plaintiff,
		Defendant:          input.Defendant,
		ExpertPainting:     input.ExpertPainting,
		ArchiveStatus:      input.ArchiveStatus,
		Remarks:            input.Remarks,
	}
	if item.Deadline.Before(item.StartDate) {
		return CaseView{}, badRequest("Deadline cannot be earlier than the start date")
	}
	if err := s.checkCaseNumbers(ctx, item.Number, item.CaseNumber, ""); err != nil {
		return CaseView{}, err
	}
	if err := s.checkCaseRefs(ctx, actor, item.ClientID, item.AssignedUserID); err != nil {
		return CaseView{}, err
	}
	if err := checkCaseRules(item); err != nil {
		return CaseView{}, err
	}
	item.RemainingDebt = item.Cost.Sub(item.Payments())

	created, err := s.store.InsertCase(ctx, item)
	if err != nil {
		return CaseView{}, err
	}
	s.indexCase(actor.CompanyID, created)
	return caseView(created), nil
}

// UpdateCase merges input into the stored case and re-checks every rule on
// the merged record. The remaining debt is recomputed when an amount changes
// unless it is given explicitly.
func (s *Service) UpdateCase(ctx context.Context, actor Actor, caseID string, input UpdateCaseInput) (CaseView, error) {
	if err := requireCaseWrite(actor, "update"); err != nil {
		return CaseView{}, err
	}
	if err := validateInput(input); err != nil {
		return CaseView{}, err
	}
	item, err := s.visibleCase(ctx, actor, caseID)
	if err != nil {
		return CaseView{}, err
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&item.ClientID, input.ClientID)
	setString(&item.Number, input.Number)
	setString(&item.CaseNumber, input.CaseNumber)
	setString(&item.Authority, input.Authority)
	setString(&item.CaseType, input.CaseType)
	setString(&item.ObjectType, input.ObjectType)
	setString(&item.ObjectAddress, input.ObjectAddress)
	setString(&item.Status, input.Status)
	setString(&item.Plaintiff, input.Plaintiff)
	setString(&item.Defendant, input.Defendant)
	setString(&item.ExpertPainting, input.ExpertPainting)
	setString(&item.ArchiveStatus, input.ArchiveStatus)
	setString(&item.Remarks, input.Remarks)

	if input.AssignedUserID != nil {
		if *input.AssignedUserID == "" {
			item.AssignedUserID = nil
		} else {
			item.AssignedUserID = input.AssignedUserID
		}
	}
	if input.StartDate != nil {
		if item.StartDate, err = parseDate(*input.StartDate); err != nil {
			return CaseView{}, err
		}
	}
	if input.Deadline != nil {
		if item.Deadline, err = parseDate(*input.Deadline); err != nil {
			return CaseView{}, err
		}
	}
	if input.CompletionDate != nil {
		if item.CompletionDate, err = parseDatePtr(input.CompletionDate); err != nil {
			return CaseView{}, err
		}
	}

	amountsChanged := false
	for _, pair := range []struct {
		dst *decimal.Decimal
		v   *decimal.Decimal
	}{
		{&item.Cost, input.Cost},
		{&item.BankTransferAmount, input.BankTransferAmount},
		{&item.CashAmount, input.CashAmount},
	} {
		if pair.v != nil {
			*pair.dst = *pair.v
			amountsChanged = true
		}
	}
	switch {
	case input.RemainingDebt != nil:
		item.RemainingDebt = *input.RemainingDebt
	case amountsChanged:
		item.RemainingDebt = item.Cost.Sub(item.Payments())
	}

	if err := checkCaseRules(item); err != nil {
		return CaseView{}, err
	}
	if input.Number != nil || input.CaseNumber != nil {
		if err := s.checkCaseNumbers(ctx, item.Number, item.CaseNumber, item.ID); err != nil {
			return CaseView{}, err
		}
	}
	if input.ClientID != nil || input.AssignedUserID != nil {
		if err := s.checkCaseRefs(ctx, actor, item.ClientID, item.AssignedUserID); err != nil {
			return CaseView{}, err
		}
	}

	updated, err := s.store.UpdateCase(ctx, item)
	if err != nil {
		return CaseView{}, orNotFound(err, "Case not found")
	}
	s.indexCase(actor.CompanyID, updated)
	return caseView(updated), nil
}

func (s *Service) DeleteCase(ctx context.Context, actor Actor, caseID string) error {
	if err := requireCaseWrite(actor, "delete"); err != nil {
		return err
	}
	deleted, err := s.store.SoftDeleteCase(ctx, actor.CompanyID, caseID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("Case not found")
	}
	if s.search != nil {
		s.search.DeleteCase(caseID)
	}
	return nil
}

// CaseArchive is a ZIP of every document attached to a case.
func (s *Service) CaseArchive(ctx context.Context, actor Actor, caseID string) (string, []byte, error) {
	c, err := s.visibleCase(ctx, actor, caseID)
	if err != nil {
		return "", nil, err
	}
	docs, err := s.store.ListCaseDocuments(ctx, actor.CompanyID, c.ID)
	if err != nil {
		return "", nil, err
	}

	archive := export.NewArchive()
	for _, doc := range docs {
		name := documentEntryName(doc)
		if doc.FolderName != "" {
			name = util.ArchiveEntryName(doc.FolderName, "folder") + "/" + name
		}
		if err := s.addBlob(ctx, archive, name, doc); err != nil {
			return "", nil, err
		}
	}
	data, err := archive.Bytes()
	if err != nil {
		return "", nil, err
	}
	return "case_" + c.Number + "_documents", data, nil
}

// CaseReport renders the case card in the requested format.
func (s *Service) CaseReport(ctx context.Context, actor Actor, caseID, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, badRequest("Unsupported report format")
	}
	if s.reports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Report export is not configured", nil)
	}
	c, err := s.visibleCase(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	client, err := s.store.GetClient(ctx, actor.CompanyID, c.ClientID)
	if err != nil {
		return nil, orNotFound(err, "Client not found")
	}
	docs, err := s.store.ListCaseDocuments(ctx, actor.CompanyID, c.ID)
	if err != nil {
		return nil, err
	}

	companyName := ""
	if actor.Snapshot.Company != nil {
		companyName = actor.Snapshot.Company.Name
	}
	report := export.CaseReport{
		Number:             c.Number,
		CaseNumber:         c.CaseNumber,
		Status:             c.Status,
		Authority:          c.Authority,
		CaseType:           c.CaseType,
		ObjectType:         c.ObjectType,
		ObjectAddress:      c.ObjectAddress,
		Plaintiff:          c.Plaintiff,
		Defendant:          c.Defendant,
		StartDate:          c.StartDate,
		Deadline:           c.Deadline,
		CompletionDate:     c.CompletionDate,
		Remarks:            c.Remarks,
		Cost:               c.Cost,
		BankTransferAmount: c.BankTransferAmount,
		CashAmount:         c.CashAmount,
		RemainingDebt:      c.RemainingDebt,
		ClientName:         client.Name,
		ClientINN:          client.INN,
		ExpertName:         c.ExpertName,
		CompanyName:        companyName,
		GeneratedAt:        s.now(),
		GeneratedBy:        actor.FullName,
	}
	for _, ct := range client.Contacts {
		report.Contacts = append(report.Contacts, export.ReportContact{
			Name: ct.Name, Position: ct.Position, Phone: ct.Phone, Email: ct.Email, IsMain: ct.IsMain,
		})
	}
	for _, d := range docs {
		report.Documents = append(report.Documents, export.ReportDocument{
			Title: d.Title, FolderName: d.FolderName, UploadedBy: d.UploadedByName, UploadedAt: d.CreatedAt, SizeBytes: d.FileSize,
		})
	}

	result, err := s.reports.CaseReport(ctx, report, f)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			s.logger.Warn("report converter unavailable", zap.String("format", string(f)), zap.Error(err))
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Report format "+string(f)+" is not available", nil)
		}
		return nil, err
	}
	return result, nil
}

func caseRecord(companyID string, c store.Case) search.CaseRecord {
	assignee := ""
	if c.AssignedUserID != nil {
		assignee = *c.AssignedUserID
	}
	return search.CaseRecord{
		ID:            c.ID,
		CompanyID:     companyID,
		AssigneeID:    assignee,
		ClientID:      c.ClientID,
		ClientName:    c.ClientName,
		Number:        c.Number,
		CaseNumber:    c.CaseNumber,
		Authority:     c.Authority,
		ObjectAddress: c.ObjectAddress,
		Plaintiff:     c.Plaintiff,
		Defendant:     c.Defendant,
		Status:        c.Status,
	}
}

func (s *Service) indexCase(companyID string, c store.Case) {
	if s.search != nil {
		s.search.IndexCase(caseRecord(companyID, c))
	}
}
