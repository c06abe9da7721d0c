package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 20))
	assert.Equal(t, 3, TotalPages(45, 20))
	assert.Equal(t, 2, TotalPages(40, 20))
	assert.Equal(t, 1, TotalPages(1, 100))
}

func TestNormalizePage(t *testing.T) {
	page, limit := NormalizePage(0, 0, DefaultPageSize)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, limit)

	page, limit = NormalizePage(3, 500, DefaultPageSize)
	assert.Equal(t, 3, page)
	assert.Equal(t, MaxPageSize, limit)
}

func TestWhereBuilderPlaceholders(t *testing.T) {
	b := &whereBuilder{}
	assert.Equal(t, "TRUE", b.sql())

	b.add("a = %s", 1)
	b.add("b BETWEEN %s AND %s", 2, 3)
	assert.Equal(t, "a = $1 AND b BETWEEN $2 AND $3", b.sql())
	assert.Equal(t, []any{1, 2, 3}, b.args)

	c := b.clone()
	c.add("d = %s", 4)
	assert.Len(t, b.conds, 2)
	assert.Len(t, c.conds, 3)
	assert.Equal(t, "$5", c.bind(5))
}

func TestScopeConditionsForExpert(t *testing.T) {
	b := scopeConditions(CaseScope{CompanyID: "co", AssigneeID: "u1"})
	sql := b.sql()
	assert.Contains(t, sql, "c.deleted_at IS NULL")
	assert.Contains(t, sql, "cl.company_id = $1")
	assert.Contains(t, sql, "c.assigned_user_id = $2")
	assert.Equal(t, []any{"co", "u1"}, b.args)

	tenant := scopeConditions(CaseScope{CompanyID: "co"})
	assert.NotContains(t, tenant.sql(), "assigned_user_id")
}

func TestApplyCaseFilter(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minCost := decimal.NewFromInt(1000)

	b := &whereBuilder{}
	applyCaseFilter(b, CaseFilter{
		Statuses:      []string{"in_work", "debt"},
		Number:        "A-1",
		Authority:     "court",
		StartDateFrom: &from,
		MinCost:       &minCost,
		Search:        "ivanov",
	})
	sql := b.sql()

	assert.Contains(t, sql, "c.status = ANY($1)")
	assert.Contains(t, sql, "c.start_date >= $2")
	assert.Contains(t, sql, "c.cost >= $3")
	assert.Contains(t, sql, "c.number = $4")
	assert.Contains(t, sql, "c.authority ILIKE $5")
	assert.Contains(t, sql, "cl.name ILIKE")
	require.Len(t, b.args, 6)
	assert.Equal(t, "%court%", b.args[4])
	assert.Equal(t, "%ivanov%", b.args[5])
}

func TestApplyCaseFilterEmpty(t *testing.T) {
	b := &whereBuilder{}
	applyCaseFilter(b, CaseFilter{})
	assert.Equal(t, "TRUE", b.sql())
}

func TestCaseOrderBy(t *testing.T) {
	assert.Contains(t, caseOrderBy("", ""), "c.created_at DESC")
	assert.Contains(t, caseOrderBy("client_name", "asc"), "cl.name ASC")
	assert.Contains(t, caseOrderBy("expert_name", "desc"), "u.full_name DESC")
	assert.Contains(t, caseOrderBy("password; DROP", "asc"), "c.created_at")
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
	assert.Equal(t, `a\\b%`, prefixPattern(`a\b`))
}
