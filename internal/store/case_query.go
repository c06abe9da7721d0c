package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CaseScope is the visibility boundary of a case query: the tenant, and for
// experts the assignee they are restricted to.
type CaseScope struct {
	CompanyID  string
	AssigneeID string
}

type CaseFilter struct {
	Statuses       []string
	AssignedUserID string
	ClientID       string

	StartDateFrom      *time.Time
	StartDateTo        *time.Time
	DeadlineFrom       *time.Time
	DeadlineTo         *time.Time
	CompletionDateFrom *time.Time
	CompletionDateTo   *time.Time
	CreatedFrom        *time.Time
	CreatedTo          *time.Time

	MinCost *decimal.Decimal
	MaxCost *decimal.Decimal
	MinDebt *decimal.Decimal
	MaxDebt *decimal.Decimal

	Number        string
	CaseNumber    string
	Authority     string
	CaseType      string
	ObjectType    string
	ObjectAddress string
	Search        string

	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// ClosedStatuses are the statuses that do not count as active in list summaries.
var ClosedStatuses = []string{"executed", "cancelled", "archive"}

const StatusInWork = "in_work"

var CaseStatuses = []string{"archive", "in_work", "debt", "executed", "withdrawn", "cancelled", "fssp"}

// caseSortColumns whitelists sortable fields. client_name and expert_name come
// from the LEFT JOINs in caseSelect.
var caseSortColumns = map[string]string{
	"number":               "c.number",
	"case_number":          "c.case_number",
	"authority":            "c.authority",
	"case_type":            "c.case_type",
	"object_type":          "c.object_type",
	"object_address":       "c.object_address",
	"status":               "c.status",
	"start_date":           "c.start_date",
	"deadline":             "c.deadline",
	"completion_date":      "c.completion_date",
	"cost":                 "c.cost",
	"bank_transfer_amount": "c.bank_transfer_amount",
	"cash_amount":          "c.cash_amount",
	"remaining_debt":       "c.remaining_debt",
	"created_at":           "c.created_at",
	"updated_at":           "c.updated_at",
	"client_name":          "cl.name",
	"expert_name":          "u.full_name",
}

const caseFrom = `
	FROM cases c
	LEFT JOIN clients cl ON cl.id = c.client_id
	LEFT JOIN users u ON u.id = c.assigned_user_id`

const caseColumns = `
	c.id, c.client_id, c.number, c.case_number, c.authority, c.case_type, c.object_type,
	c.object_address, c.status, c.assigned_user_id, c.start_date, c.deadline, c.completion_date,
	c.cost, c.bank_transfer_amount, c.cash_amount, c.remaining_debt, c.plaintiff, c.defendant,
	c.expert_painting, c.archive_status, c.remarks, c.created_at, c.updated_at, c.deleted_at,
	COALESCE(cl.name, ''), COALESCE(u.full_name, ''), COALESCE(u.email, '')`

const caseSelect = `SELECT` + caseColumns + caseFrom

// scopeConditions restricts to live cases of the tenant, and to the assignee
// for experts.
func scopeConditions(scope CaseScope) *whereBuilder {
	b := &whereBuilder{}
	b.conds = append(b.conds, "c.deleted_at IS NULL")
	b.add("cl.company_id = %s", scope.CompanyID)
	if scope.AssigneeID != "" {
		b.add("c.assigned_user_id = %s", scope.AssigneeID)
	}
	return b
}

// applyCaseFilter extends b with every filter that is set.
func applyCaseFilter(b *whereBuilder, f CaseFilter) {
	if statuses := nonEmpty(f.Statuses); len(statuses) > 0 {
		b.add("c.status = ANY(%s)", statuses)
	}
	if f.AssignedUserID != "" {
		b.add("c.assigned_user_id = %s", f.AssignedUserID)
	}
	if f.ClientID != "" {
		b.add("c.client_id = %s", f.ClientID)
	}

	addRange(b, "c.start_date", f.StartDateFrom, f.StartDateTo)
	addRange(b, "c.deadline", f.DeadlineFrom, f.DeadlineTo)
	addRange(b, "c.completion_date", f.CompletionDateFrom, f.CompletionDateTo)
	addRange(b, "c.created_at", f.CreatedFrom, f.CreatedTo)

	if f.MinCost != nil {
		b.add("c.cost >= %s", *f.MinCost)
	}
	if f.MaxCost != nil {
		b.add("c.cost <= %s", *f.MaxCost)
	}
	if f.MinDebt != nil {
		b.add("c.remaining_debt >= %s", *f.MinDebt)
	}
	if f.MaxDebt != nil {
		b.add("c.remaining_debt <= %s", *f.MaxDebt)
	}

	if v := strings.TrimSpace(f.Number); v != "" {
		b.add("c.number = %s", v)
	}
	if v := strings.TrimSpace(f.CaseNumber); v != "" {
		b.add("c.case_number = %s", v)
	}
	if v := strings.TrimSpace(f.Authority); v != "" {
		b.add("c.authority ILIKE %s", likePattern(v))
	}
	if v := strings.TrimSpace(f.CaseType); v != "" {
		b.add("c.case_type ILIKE %s", likePattern(v))
	}
	if v := strings.TrimSpace(f.ObjectType); v != "" {
		b.add("c.object_type ILIKE %s", likePattern(v))
	}
	if v := strings.TrimSpace(f.ObjectAddress); v != "" {
		b.add("c.object_address ILIKE %s", likePattern(v))
	}

	if v := strings.TrimSpace(f.Search); v != "" {
		p := b.bind(likePattern(v))
		b.conds = append(b.conds, "("+strings.Join([]string{
			"c.number ILIKE " + p,
			"c.case_number ILIKE " + p,
			"c.authority ILIKE " + p,
			"c.object_address ILIKE " + p,
			"c.plaintiff ILIKE " + p,
			"c.defendant ILIKE " + p,
			"c.remarks ILIKE " + p,
			"cl.name ILIKE " + p,
		}, " OR ")+")")
	}
}

func addRange(b *whereBuilder, column string, from, to *time.Time) {
	if from != nil {
		b.add(column+" >= %s", *from)
	}
	if to != nil {
		b.add(column+" <= %s", *to)
	}
}

// caseOrderBy returns a whitelisted ORDER BY clause, defaulting to created_at desc.
func caseOrderBy(sortBy, sortOrder string) string {
	column, ok := caseSortColumns[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		column = "c.created_at"
		if strings.TrimSpace(sortOrder) == "" {
			sortOrder = "desc"
		}
	}
	return "ORDER BY " + column + " " + sortDirection(sortOrder) + " NULLS LAST, c.id " + sortDirection(sortOrder)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func scanCase(row rowScanner) (Case, error) {
	var (
		item       Case
		assignedID nullableID
	)
	err := row.Scan(
		&item.ID, &item.ClientID, &item.Number, &item.CaseNumber, &item.Authority, &item.CaseType,
		&item.ObjectType, &item.ObjectAddress, &item.Status, &assignedID, &item.StartDate, &item.Deadline,
		&item.CompletionDate, &item.Cost, &item.BankTransferAmount, &item.CashAmount, &item.RemainingDebt,
		&item.Plaintiff, &item.Defendant, &item.ExpertPainting, &item.ArchiveStatus, &item.Remarks,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &item.ClientName, &item.ExpertName, &item.ExpertEmail,
	)
	if err != nil {
		return Case{}, err
	}
	item.AssignedUserID = assignedID.ptr()
	return item, nil
}
