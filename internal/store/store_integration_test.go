package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func migratedStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	if err := ApplyMigrations(ctx, db, testMigrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func seedTenant(t *testing.T, ctx context.Context, s *PostgresStore, inn string) (Company, User, User, Client) {
	t.Helper()
	company, ceo, err := s.CreateCompanyWithOwner(ctx,
		Company{Name: "Tenant " + inn, INN: inn, IsActive: true},
		User{Email: "ceo-" + inn + "@example.com", PasswordHash: "x", FullName: "Chief", Role: "ceo", CanAuthenticate: true},
	)
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	expert, err := s.InsertUser(ctx, User{CompanyID: company.ID, Email: "expert-" + inn + "@example.com",
		PasswordHash: "x", FullName: "Expert", Role: "expert", CanAuthenticate: true})
	if err != nil {
		t.Fatalf("insert expert: %v", err)
	}
	client, err := s.InsertClient(ctx, Client{CompanyID: company.ID, Type: "legal", Name: "Acme " + inn}, &Contact{Name: "Main", IsMain: true})
	if err != nil {
		t.Fatalf("insert client: %v", err)
	}
	return company, ceo, expert, client
}

func TestCaseListingScopesAndSummaries(t *testing.T) {
	s, ctx := migratedStore(t)
	company, _, expert, client := seedTenant(t, ctx, s, "1111111111")
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	insert := func(number, status string, assignee *string, deadline time.Time) {
		t.Helper()
		_, err := s.InsertCase(ctx, Case{
			ClientID: client.ID, Number: number, CaseNumber: "CN-" + number, Status: status,
			AssignedUserID: assignee, StartDate: deadline.AddDate(0, -1, 0), Deadline: deadline,
			Cost: decimal.NewFromInt(1000), RemainingDebt: decimal.NewFromInt(250),
		})
		if err != nil {
			t.Fatalf("insert case %s: %v", number, err)
		}
	}
	insert("1", "in_work", &expert.ID, today.AddDate(0, 0, -3))
	insert("2", "executed", nil, today.AddDate(0, 0, 10))
	insert("3", "debt", nil, today.AddDate(0, 0, 10))

	page, err := s.ListCases(ctx, CaseScope{CompanyID: company.ID}, CaseFilter{}, today)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("expected 3 cases, got total=%d items=%d", page.Total, len(page.Items))
	}
	if page.Summary.Active != 2 || page.Summary.Overdue != 1 || page.Summary.Completed != 1 {
		t.Fatalf("unexpected summary: %+v", page.Summary)
	}

	own, err := s.ListCases(ctx, CaseScope{CompanyID: company.ID, AssigneeID: expert.ID}, CaseFilter{}, today)
	if err != nil {
		t.Fatalf("list expert cases: %v", err)
	}
	if own.Total != 1 || own.Items[0].Number != "1" || own.Items[0].ExpertName != "Expert" {
		t.Fatalf("expert scope leaked rows: %+v", own.Items)
	}

	sorted, err := s.ListCases(ctx, CaseScope{CompanyID: company.ID}, CaseFilter{SortBy: "number", SortOrder: "asc", Limit: 2}, today)
	if err != nil {
		t.Fatalf("list sorted: %v", err)
	}
	if len(sorted.Items) != 2 || sorted.Items[0].Number != "1" || sorted.Total != 3 {
		t.Fatalf("unexpected sorted page: %+v", sorted.Items)
	}

	agg, err := s.CaseFinancials(ctx, CaseScope{CompanyID: company.ID}, today)
	if err != nil {
		t.Fatalf("financials: %v", err)
	}
	if !agg.Revenue.Equal(decimal.NewFromInt(2000)) || agg.PendingPayments != 3 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	other, _, _, _ := seedTenant(t, ctx, s, "2222222222")
	foreign, err := s.ListCases(ctx, CaseScope{CompanyID: other.ID}, CaseFilter{}, today)
	if err != nil {
		t.Fatalf("list foreign: %v", err)
	}
	if foreign.Total != 0 {
		t.Fatalf("tenant isolation broken: %d cases visible", foreign.Total)
	}

	field, err := s.CaseNumberConflict(ctx, "1", "CN-unused", "")
	if err != nil || field != "number" {
		t.Fatalf("expected number conflict, got %q err=%v", field, err)
	}
}

func TestFolderMoveAndDeleteTree(t *testing.T) {
	s, ctx := migratedStore(t)
	company, ceo, _, _ := seedTenant(t, ctx, s, "3333333333")

	root, err := s.InsertFolder(ctx, Folder{CompanyID: company.ID, Name: "root", CreatedByID: &ceo.ID})
	if err != nil {
		t.Fatalf("insert root: %v", err)
	}
	child, err := s.InsertFolder(ctx, Folder{CompanyID: company.ID, Name: "child", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("insert child: %v", err)
	}
	if _, err := s.InsertDocument(ctx, Document{CompanyID: company.ID, FolderID: &child.ID, Title: "a.pdf",
		OriginalFilename: "a.pdf", FilePath: "documents/a.pdf", MimeType: "application/pdf"}); err != nil {
		t.Fatalf("insert document: %v", err)
	}

	var walked []string
	root.ParentID = &child.ID
	_, err = s.UpdateFolder(ctx, root, func(ctx context.Context, parentOf ParentLookup) error {
		parent, found, err := parentOf(ctx, child.ID)
		if err != nil {
			return err
		}
		if !found || parent == nil {
			t.Fatalf("expected child to have a parent")
		}
		walked = append(walked, *parent)
		return errors.New("cycle")
	})
	if err == nil || err.Error() != "cycle" {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(walked) != 1 || walked[0] != root.ID {
		t.Fatalf("lookup returned %v", walked)
	}

	entries, err := s.ListFolderEntries(ctx, EntryQuery{CompanyID: company.ID, Limit: 50})
	if err != nil {
		t.Fatalf("list root entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != root.ID || entries[0].CreatedByName != "Chief" {
		t.Fatalf("unexpected root entries: %+v", entries)
	}

	keys, found, err := s.DeleteFolderTree(ctx, company.ID, root.ID)
	if err != nil || !found {
		t.Fatalf("delete tree: found=%v err=%v", found, err)
	}
	if len(keys) != 1 || keys[0] != "documents/a.pdf" {
		t.Fatalf("unexpected blob keys: %v", keys)
	}
	if _, err := s.GetFolder(ctx, company.ID, child.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected child folder to cascade, got %v", err)
	}
}

func TestMainContactIsExclusive(t *testing.T) {
	s, ctx := migratedStore(t)
	company, _, _, client := seedTenant(t, ctx, s, "4444444444")

	if _, err := s.InsertContact(ctx, Contact{ClientID: client.ID, Name: "Second", IsMain: true}); err != nil {
		t.Fatalf("insert contact: %v", err)
	}
	loaded, err := s.GetClient(ctx, company.ID, client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	mains := 0
	for _, c := range loaded.Contacts {
		if c.IsMain {
			mains++
			if c.Name != "Second" {
				t.Fatalf("expected newest main contact, got %s", c.Name)
			}
		}
	}
	if mains != 1 {
		t.Fatalf("expected exactly one main contact, got %d", mains)
	}
}

func TestDeleteClientReturnsCascadedCases(t *testing.T) {
	s, ctx := migratedStore(t)
	company, _, _, client := seedTenant(t, ctx, s, "5555555555")
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	created, err := s.InsertCase(ctx, Case{
		ClientID: client.ID, Number: "D-1", CaseNumber: "CN-D-1", Status: "in_work",
		StartDate: day, Deadline: day.AddDate(0, 1, 0), Cost: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("insert case: %v", err)
	}

	cases, err := s.ListClientCases(ctx, company.ID, client.ID)
	if err != nil || len(cases) != 1 || cases[0].ClientName != client.Name {
		t.Fatalf("list client cases: %+v err=%v", cases, err)
	}

	other, _, _, _ := seedTenant(t, ctx, s, "6666666666")
	ids, deleted, err := s.DeleteClient(ctx, other.ID, client.ID)
	if err != nil || deleted || len(ids) != 0 {
		t.Fatalf("foreign tenant delete: ids=%v deleted=%v err=%v", ids, deleted, err)
	}

	ids, deleted, err = s.DeleteClient(ctx, company.ID, client.ID)
	if err != nil || !deleted {
		t.Fatalf("delete client: deleted=%v err=%v", deleted, err)
	}
	if len(ids) != 1 || ids[0] != created.ID {
		t.Fatalf("expected cascaded case %s, got %v", created.ID, ids)
	}
	if _, err := s.GetCase(ctx, CaseScope{CompanyID: company.ID}, created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected case gone, got %v", err)
	}
}
