package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/search"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
)

type fakeIndex struct {
	cases          []search.CaseRecord
	clients        []search.ClientRecord
	deletedCases   []string
	deletedClients []string
}

func (f *fakeIndex) Search(context.Context, search.Query) search.Response {
	return search.Response{}
}

func (f *fakeIndex) IndexCase(r search.CaseRecord) {
	f.cases = append(f.cases, r)
}

func (f *fakeIndex) IndexClient(r search.ClientRecord) {
	f.clients = append(f.clients, r)
}

func (f *fakeIndex) DeleteCase(id string) {
	f.deletedCases = append(f.deletedCases, id)
}

func (f *fakeIndex) DeleteClient(id string) {
	f.deletedClients = append(f.deletedClients, id)
}

type clientStore struct {
	*fakeStore
	client      store.Client
	cases       []store.Case
	removed     bool
	listedCases int
}

func (c *clientStore) GetClient(_ context.Context, companyID, clientID string) (store.Client, error) {
	item := c.client
	item.ID, item.CompanyID = clientID, companyID
	return item, nil
}

func (c *clientStore) UpdateClient(_ context.Context, item store.Client) (store.Client, error) {
	c.client = item
	for i := range c.cases {
		c.cases[i].ClientName = item.Name
	}
	return item, nil
}

func (c *clientStore) DeleteClient(_ context.Context, _, clientID string) ([]string, bool, error) {
	if c.removed {
		return nil, false, nil
	}
	c.removed = true
	ids := make([]string, 0, len(c.cases))
	for _, item := range c.cases {
		ids = append(ids, item.ID)
	}
	return ids, true, nil
}

func (c *clientStore) ListClientCases(_ context.Context, _, clientID string) ([]store.Case, error) {
	c.listedCases++
	return c.cases, nil
}

func newClientService(cs *clientStore, index *fakeIndex) *Service {
	svc := newTestService(cs.fakeStore)
	svc.store = cs
	svc.search = index
	return svc
}

func clientWithCases() *clientStore {
	return &clientStore{
		fakeStore: &fakeStore{},
		client:    store.Client{Name: "Old Name", Type: "legal"},
		cases: []store.Case{
			{ID: "case-1", ClientID: testClientID, ClientName: "Old Name", Number: "A-1"},
			{ID: "case-2", ClientID: testClientID, ClientName: "Old Name", Number: "A-2"},
		},
	}
}

func TestDeleteClientDropsCascadedCasesFromIndex(t *testing.T) {
	cs := clientWithCases()
	index := &fakeIndex{}
	svc := newClientService(cs, index)

	if err := svc.DeleteClient(context.Background(), testActor(rbac.RoleCEO), testClientID); err != nil {
		t.Fatalf("DeleteClient() error = %v", err)
	}
	if len(index.deletedCases) != 2 || index.deletedCases[0] != "case-1" || index.deletedCases[1] != "case-2" {
		t.Fatalf("expected cascaded cases removed from index, got %v", index.deletedCases)
	}
	if len(index.deletedClients) != 1 || index.deletedClients[0] != testClientID {
		t.Fatalf("expected client removed from index, got %v", index.deletedClients)
	}

	err := svc.DeleteClient(context.Background(), testActor(rbac.RoleCEO), testClientID)
	expectStatus(t, err, http.StatusNotFound)
	if len(index.deletedCases) != 2 {
		t.Fatalf("missing client must not touch the index, got %v", index.deletedCases)
	}
}

func TestUpdateClientRenameReindexesCases(t *testing.T) {
	cs := clientWithCases()
	index := &fakeIndex{}
	svc := newClientService(cs, index)

	view, err := svc.UpdateClient(context.Background(), testActor(rbac.RoleCEO), testClientID, UpdateClientInput{Name: strPtr("New Name")})
	if err != nil {
		t.Fatalf("UpdateClient() error = %v", err)
	}
	if view.Name != "New Name" {
		t.Fatalf("expected renamed client, got %+v", view)
	}
	if len(index.cases) != 2 {
		t.Fatalf("expected both cases reindexed, got %d", len(index.cases))
	}
	for _, r := range index.cases {
		if r.ClientName != "New Name" || r.CompanyID != testCompanyID {
			t.Fatalf("stale case record %+v", r)
		}
	}
}

func TestUpdateClientWithoutRenameSkipsCases(t *testing.T) {
	cs := clientWithCases()
	index := &fakeIndex{}
	svc := newClientService(cs, index)

	if _, err := svc.UpdateClient(context.Background(), testActor(rbac.RoleCEO), testClientID, UpdateClientInput{Phone: strPtr("+7 900 000-00-00")}); err != nil {
		t.Fatalf("UpdateClient() error = %v", err)
	}
	if cs.listedCases != 0 || len(index.cases) != 0 {
		t.Fatalf("expected no case reindex, listed=%d indexed=%d", cs.listedCases, len(index.cases))
	}
	if len(index.clients) != 1 {
		t.Fatalf("expected client reindexed once, got %d", len(index.clients))
	}
}

func TestDeleteClientForbiddenForExpert(t *testing.T) {
	index := &fakeIndex{}
	svc := newClientService(clientWithCases(), index)
	err := svc.DeleteClient(context.Background(), testActor(rbac.RoleExpert), testClientID)
	expectStatus(t, err, http.StatusForbidden)
	if len(index.deletedCases) != 0 || len(index.deletedClients) != 0 {
		t.Fatalf("expected index untouched")
	}
}
