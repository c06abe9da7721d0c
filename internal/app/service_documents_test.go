package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
)

type documentStore struct {
	*fakeStore
	folders   map[string]store.Folder
	documents map[string]store.Document
	insertErr error
	inserted  []store.Document
	deleted   []string
}

func newDocumentStore() *documentStore {
	return &documentStore{
		fakeStore: &fakeStore{},
		folders:   map[string]store.Folder{},
		documents: map[string]store.Document{},
	}
}

func (d *documentStore) GetFolder(_ context.Context, _ string, id string) (store.Folder, error) {
	f, ok := d.folders[id]
	if !ok {
		return store.Folder{}, sql.ErrNoRows
	}
	return f, nil
}

func (d *documentStore) GetDocument(_ context.Context, _ string, id string) (store.Document, error) {
	doc, ok := d.documents[id]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (d *documentStore) InsertDocument(_ context.Context, doc store.Document) (store.Document, error) {
	if d.insertErr != nil {
		return store.Document{}, d.insertErr
	}
	doc.ID = "doc-new"
	d.inserted = append(d.inserted, doc)
	return doc, nil
}

func (d *documentStore) DeleteDocument(_ context.Context, _ string, id string) (string, error) {
	doc, ok := d.documents[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	d.deleted = append(d.deleted, id)
	return doc.FilePath, nil
}

type fakeBlobs struct {
	objects map[string]string
	removed []string
}

func (b *fakeBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if b.objects == nil {
		b.objects = map[string]string{}
	}
	b.objects[key] = string(data)
	return nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(b.objects[key])), nil
}

func (b *fakeBlobs) Remove(_ context.Context, key string) error {
	b.removed = append(b.removed, key)
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobs) PresignedURL(_ context.Context, key, filename string, download bool) (string, error) {
	u := "https://s3.local/" + key + "?name=" + filename
	if download {
		u += "&download=1"
	}
	return u, nil
}

func newDocumentService(ds *documentStore, blobs *fakeBlobs) *Service {
	svc := newTestService(ds.fakeStore)
	svc.store = ds
	svc.blobs = blobs
	return svc
}

func TestUploadDocumentStoresObjectAndRow(t *testing.T) {
	ds := newDocumentStore()
	blobs := &fakeBlobs{}
	svc := newDocumentService(ds, blobs)

	view, err := svc.UploadDocument(context.Background(), testActor(rbac.RoleAccountant), UploadInput{
		Filename: "Expert Report.PDF",
		Size:     -1,
		Body:     strings.NewReader("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if len(ds.inserted) != 1 {
		t.Fatalf("expected one inserted row, got %d", len(ds.inserted))
	}
	doc := ds.inserted[0]
	if doc.Title != "Expert Report.PDF" || doc.FileExtension != ".pdf" || doc.FileSize != 8 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if !strings.HasPrefix(doc.FilePath, "documents/") || !strings.HasSuffix(doc.FilePath, ".pdf") {
		t.Fatalf("unexpected object key %q", doc.FilePath)
	}
	if blobs.objects[doc.FilePath] != "%PDF-1.7" {
		t.Fatalf("object body not stored")
	}
	if view.ID != "doc-new" {
		t.Fatalf("expected view of inserted row, got %+v", view)
	}
}

func TestUploadDocumentRemovesObjectWhenInsertFails(t *testing.T) {
	ds := newDocumentStore()
	ds.insertErr = errors.New("insert failed")
	blobs := &fakeBlobs{}
	svc := newDocumentService(ds, blobs)

	_, err := svc.UploadDocument(context.Background(), testActor(rbac.RoleCEO), UploadInput{
		Filename: "scan.png",
		Size:     3,
		Body:     strings.NewReader("png"),
	})
	if err == nil {
		t.Fatalf("expected insert error")
	}
	if len(blobs.removed) != 1 || len(blobs.objects) != 0 {
		t.Fatalf("expected orphaned object to be removed, removed=%v left=%v", blobs.removed, blobs.objects)
	}
}

func TestUploadDocumentUnknownFolder(t *testing.T) {
	svc := newDocumentService(newDocumentStore(), &fakeBlobs{})
	folderID := testClientID
	_, err := svc.UploadDocument(context.Background(), testActor(rbac.RoleCEO), UploadInput{
		Filename: "a.txt",
		Body:     strings.NewReader("a"),
		FolderID: &folderID,
	})
	expectStatus(t, err, http.StatusNotFound)
}

func TestUploadWithoutStorageIsUnavailable(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.UploadDocument(context.Background(), testActor(rbac.RoleCEO), UploadInput{Filename: "a.txt"})
	expectStatus(t, err, http.StatusServiceUnavailable)
}

func TestDeleteDocumentRequiresOwnership(t *testing.T) {
	owner := testUserID
	ds := newDocumentStore()
	ds.documents["doc-1"] = store.Document{ID: "doc-1", UploadedByID: &owner, FilePath: "documents/doc-1.pdf"}
	blobs := &fakeBlobs{}
	svc := newDocumentService(ds, blobs)

	err := svc.DeleteDocument(context.Background(), testActor(rbac.RoleExpert), "doc-1")
	expectStatus(t, err, http.StatusForbidden)

	if err := svc.DeleteDocument(context.Background(), testActor(rbac.RoleCEO), "doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if len(ds.deleted) != 1 || len(blobs.removed) != 1 || blobs.removed[0] != "documents/doc-1.pdf" {
		t.Fatalf("expected row and object removal, deleted=%v removed=%v", ds.deleted, blobs.removed)
	}
}

func TestDocumentURLHidesForeignDocumentsFromExperts(t *testing.T) {
	owner := testUserID
	caseID := "case-other"
	ds := newDocumentStore()
	ds.documents["doc-1"] = store.Document{ID: "doc-1", UploadedByID: &owner, CaseID: &caseID, FilePath: "documents/x.pdf", OriginalFilename: "x.pdf"}
	svc := newDocumentService(ds, &fakeBlobs{})

	// GetCase falls back to sql.ErrNoRows, so the case is not assigned to the expert.
	_, err := svc.DocumentURL(context.Background(), testActor(rbac.RoleExpert), "doc-1", false)
	expectStatus(t, err, http.StatusNotFound)

	link, err := svc.DocumentURL(context.Background(), testActor(rbac.RoleCEO), "doc-1", true)
	if err != nil {
		t.Fatalf("DocumentURL() error = %v", err)
	}
	if !strings.Contains(link, "documents/x.pdf") || !strings.HasSuffix(link, "download=1") {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestUpdateAssetRejectsMalformedMove(t *testing.T) {
	svc := newDocumentService(newDocumentStore(), &fakeBlobs{})
	_, err := svc.UpdateAsset(context.Background(), testActor(rbac.RoleCEO), UpdateAssetInput{
		AssetType: "folder",
		AssetID:   testClientID,
		Data:      []byte(`{"parent_id": 42}`),
	})
	expectStatus(t, err, http.StatusBadRequest)
}

func TestOptionalIDDistinguishesNullFromAbsent(t *testing.T) {
	var patch documentPatch
	if err := json.Unmarshal([]byte(`{"folder_id": null}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !patch.FolderID.Set || patch.FolderID.Value != nil {
		t.Fatalf("expected explicit null, got %+v", patch.FolderID)
	}
	if patch.CaseID.Set {
		t.Fatalf("absent case_id must not be set")
	}

	patch = documentPatch{}
	if err := json.Unmarshal([]byte(`{"folder_id": "bad"}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if patch.FolderID.valid() {
		t.Fatalf("expected non-UUID folder_id to be invalid")
	}
}
