package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/export"
	"github.com/Wesp1nzee/crm-deploy/internal/storage"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/Wesp1nzee/crm-deploy/internal/util"
	"go.uber.org/zap"
)

const (
	defaultEntryLimit = 50
	maxFolderDepth    = 64
)

type EntryListInput struct {
	FolderID *string
	CaseID   string
	Search   string
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

type CreateFolderInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
	CaseID   *string `json:"case_id" validate:"omitempty,uuid"`
}

// UploadInput carries one multipart file. Size may be -1 when unknown.
type UploadInput struct {
	Filename string
	Size     int64
	Body     io.Reader
	Title    string
	CaseID   *string
	FolderID *string
}

// UpdateAssetInput edits a file or a folder. Data holds the fields of the
// matching kind.
type UpdateAssetInput struct {
	AssetType string          `json:"asset_type" validate:"required,oneof=file folder"`
	AssetID   string          `json:"asset_id" validate:"required,uuid"`
	Data      json.RawMessage `json:"data"`
}

// optionalID distinguishes an absent JSON field from an explicit null.
type optionalID struct {
	Set   bool
	Value *string
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == "" {
		o.Value = nil
		return nil
	}
	o.Value = &v
	return nil
}

func (o optionalID) valid() bool {
	return !o.Set || o.Value == nil || util.IsID(*o.Value)
}

type folderPatch struct {
	Name     *string    `json:"name"`
	ParentID optionalID `json:"parent_id"`
	CaseID   optionalID `json:"case_id"`
}

type documentPatch struct {
	Title      *string    `json:"title"`
	FolderID   optionalID `json:"folder_id"`
	CaseID     optionalID `json:"case_id"`
	IsArchived *bool      `json:"is_archived"`
}

func (s *Service) requireBlobs() error {
	if s.blobs == nil {
		return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
	}
	return nil
}

// ListEntries returns folders and documents of one level (or of the whole
// tenant when searching) as a single list. Each kind is paged on its own and
// the merged page is re-sorted.
func (s *Service) ListEntries(ctx context.Context, actor Actor, input EntryListInput) ([]EntryView, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	if limit > store.MaxPageSize {
		limit = store.MaxPageSize
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	sortBy := input.SortBy
	switch sortBy {
	case "name", "created_at", "size":
	default:
		sortBy = "created_at"
	}
	order := strings.ToLower(input.Order)
	if order != "asc" {
		order = "desc"
	}

	q := store.EntryQuery{
		CompanyID: actor.CompanyID,
		FolderID:  input.FolderID,
		CaseID:    input.CaseID,
		Search:    input.Search,
		ExpertID:  actor.expertID(),
		SortBy:    sortBy,
		Order:     order,
		Limit:     limit,
		Offset:    offset,
	}
	folders, err := s.store.ListFolderEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocumentEntries(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := make([]EntryView, 0, len(folders)+len(docs))
	for _, f := range folders {
		entries = append(entries, EntryView{
			ID:            f.ID,
			Name:          f.Name,
			Type:          EntryFolder,
			CreatedAt:     f.CreatedAt,
			CreatedByID:   f.CreatedByID,
			CreatedByName: f.CreatedByName,
			ParentID:      f.ParentID,
		})
	}
	for _, d := range docs {
		size, ext := d.FileSize, d.FileExtension
		entries = append(entries, EntryView{
			ID:            d.ID,
			Name:          d.Title,
			Type:          EntryFile,
			Size:          &size,
			Extension:     &ext,
			CreatedAt:     d.CreatedAt,
			CreatedByID:   d.UploadedByID,
			CreatedByName: d.UploadedByName,
			ParentID:      d.FolderID,
		})
	}
	sortEntries(entries, sortBy, order == "desc")
	return entries, nil
}

func sortEntries(entries []EntryView, sortBy string, desc bool) {
	less := func(a, b EntryView) bool {
		switch sortBy {
		case "name":
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "size":
			return entrySize(a) < entrySize(b)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

func entrySize(e EntryView) int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

// existingFolder returns a 404 unless folderID names a folder of the tenant.
func (s *Service) existingFolder(ctx context.Context, actor Actor, folderID *string) error {
	if folderID == nil {
		return nil
	}
	if _, err := s.store.GetFolder(ctx, actor.CompanyID, *folderID); err != nil {
		return orNotFound(err, "Folder not found")
	}
	return nil
}

func (s *Service) existingCase(ctx context.Context, actor Actor, caseID *string) error {
	if caseID == nil {
		return nil
	}
	_, err := s.visibleCase(ctx, actor, *caseID)
	return err
}

func (s *Service) CreateFolder(ctx context.Context, actor Actor, input CreateFolderInput) (FolderView, error) {
	if err := validateInput(input); err != nil {
		return FolderView{}, err
	}
	if err := s.existingFolder(ctx, actor, input.ParentID); err != nil {
		return FolderView{}, err
	}
	if err := s.existingCase(ctx, actor, input.CaseID); err != nil {
		return FolderView{}, err
	}
	creator := actor.UserID
	created, err := s.store.InsertFolder(ctx, store.Folder{
		CompanyID:   actor.CompanyID,
		Name:        strings.TrimSpace(input.Name),
		ParentID:    input.ParentID,
		CaseID:      input.CaseID,
		CreatedByID: &creator,
	})
	if err != nil {
		return FolderView{}, err
	}
	return folderView(created), nil
}

// UploadDocument stores the file under a fresh object key and records it.
// The object is removed again when the row cannot be written.
func (s *Service) UploadDocument(ctx context.Context, actor Actor, input UploadInput) (DocumentView, error) {
	if err := s.requireBlobs(); err != nil {
		return DocumentView{}, err
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return DocumentView{}, badRequest("File name is required")
	}
	for _, id := range []*string{input.CaseID, input.FolderID} {
		if id != nil && !util.IsID(*id) {
			return DocumentView{}, badRequest("Invalid identifier")
		}
	}
	if err := s.existingFolder(ctx, actor, input.FolderID); err != nil {
		return DocumentView{}, err
	}
	if err := s.existingCase(ctx, actor, input.CaseID); err != nil {
		return DocumentView{}, err
	}

	key := util.ObjectKey(filename)
	contentType := storage.ContentTypeFor(filename)
	counter := &countingReader{r: input.Body}
	if err := s.blobs.Put(ctx, key, counter, input.Size, contentType); err != nil {
		return DocumentView{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = filename
	}
	size := input.Size
	if size < 0 {
		size = counter.n
	}
	uploader := actor.UserID
	created, err := s.store.InsertDocument(ctx, store.Document{
		CompanyID:        actor.CompanyID,
		CaseID:           input.CaseID,
		FolderID:         input.FolderID,
		UploadedByID:     &uploader,
		Title:            title,
		OriginalFilename: filename,
		FilePath:         key,
		FileSize:         size,
		MimeType:         contentType,
		FileExtension:    util.FileExtension(filename),
	})
	if err != nil {
		if rmErr := s.blobs.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			s.logger.Warn("remove orphaned object", zap.String("key", key), zap.Error(rmErr))
		}
		return DocumentView{}, err
	}
	return documentView(created), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *Service) readableDocument(ctx context.Context, actor Actor, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, actor.CompanyID, documentID)
	if err != nil {
		return store.Document{}, orNotFound(err, "Document not found")
	}
	ok, err := s.newAccessChecker(actor).document(ctx, doc)
	if err != nil {
		return store.Document{}, err
	}
	if !ok {
		return store.Document{}, notFound("Document not found")
	}
	return doc, nil
}

// DocumentURL returns a presigned link. download selects an attachment
// disposition instead of inline display.
func (s *Service) DocumentURL(ctx context.Context, actor Actor, documentID string, download bool) (string, error) {
	if err := s.requireBlobs(); err != nil {
		return "", err
	}
	doc, err := s.readableDocument(ctx, actor, documentID)
	if err != nil {
		return "", err
	}
	return s.blobs.PresignedURL(ctx, doc.FilePath, doc.OriginalFilename, download)
}

func (s *Service) DeleteDocument(ctx context.Context, actor Actor, documentID string) error {
	doc, err := s.store.GetDocument(ctx, actor.CompanyID, documentID)
	if err != nil {
		return orNotFound(err, "Document not found")
	}
	if !canEditDocument(actor, doc) {
		return forbidden("You can only delete documents you uploaded")
	}
	key, err := s.store.DeleteDocument(ctx, actor.CompanyID, documentID)
	if err != nil {
		return orNotFound(err, "Document not found")
	}
	s.removeBlobs(ctx, []string{key})
	return nil
}

// DeleteFolder removes the folder subtree with its documents, then their
// objects. Object removal failures are logged and ignored.
func (s *Service) DeleteFolder(ctx context.Context, actor Actor, folderID string) error {
	folder, err := s.store.GetFolder(ctx, actor.CompanyID, folderID)
	if err != nil {
		return orNotFound(err, "Folder not found")
	}
	if !canEditFolder(actor, folder) {
		return forbidden("You can only delete folders you created")
	}
	keys, found, err := s.store.DeleteFolderTree(ctx, actor.CompanyID, folderID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("Folder not found")
	}
	s.removeBlobs(ctx, keys)
	return nil
}

func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	if s.blobs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Remove(ctx, key); err != nil {
			s.logger.Warn("remove object", zap.String("key", key), zap.Error(err))
		}
	}
}

// UpdateAsset renames or moves a file or a folder.
func (s *Service) UpdateAsset(ctx context.Context, actor Actor, input UpdateAssetInput) (any, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	data := input.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if input.AssetType == string(EntryFolder) {
		var patch folderPatch
		if err := json.Unmarshal(data, &patch); err != nil {
			return nil, badRequest("Invalid folder data")
		}
		return s.updateFolder(ctx, actor, input.AssetID, patch)
	}
	var patch documentPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, badRequest("Invalid file data")
	}
	return s.updateDocument(ctx, actor, input.AssetID, patch)
}

func (s *Service) updateFolder(ctx context.Context, actor Actor, folderID string, patch folderPatch) (FolderView, error) {
	if !patch.ParentID.valid() || !patch.CaseID.valid() {
		return FolderView{}, badRequest("Invalid identifier")
	}
	folder, err := s.store.GetFolder(ctx, actor.CompanyID, folderID)
	if err != nil {
		return FolderView{}, orNotFound(err, "Folder not found")
	}
	if !canEditFolder(actor, folder) {
		return FolderView{}, forbidden("You can only edit folders you created")
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" || len([]rune(name)) > 255 {
			return FolderView{}, badRequest("Folder name must be between 1 and 255 characters")
		}
		folder.Name = name
	}
	if patch.CaseID.Set {
		if err := s.existingCase(ctx, actor, patch.CaseID.Value); err != nil {
			return FolderView{}, err
		}
		folder.CaseID = patch.CaseID.Value
	}
	var validate func(context.Context, store.ParentLookup) error
	if patch.ParentID.Set {
		folder.ParentID = patch.ParentID.Value
		validate = checkFolderMove(folder.ID, folder.ParentID)
	}

	updated, err := s.store.UpdateFolder(ctx, folder, validate)
	if err != nil {
		return FolderView{}, orNotFound(err, "Folder not found")
	}
	return folderView(updated), nil
}

func (s *Service) updateDocument(ctx context.Context, actor Actor, documentID string, patch documentPatch) (DocumentView, error) {
	if !patch.FolderID.valid() || !patch.CaseID.valid() {
		return DocumentView{}, badRequest("Invalid identifier")
	}
	doc, err := s.store.GetDocument(ctx, actor.CompanyID, documentID)
	if err != nil {
		return DocumentView{}, orNotFound(err, "Document not found")
	}
	if !canEditDocument(actor, doc) {
		return DocumentView{}, forbidden("You can only edit documents you uploaded")
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" || len([]rune(title)) > 255 {
			return DocumentView{}, badRequest("Title must be between 1 and 255 characters")
		}
		doc.Title = title
	}
	if patch.FolderID.Set {
		if err := s.existingFolder(ctx, actor, patch.FolderID.Value); err != nil {
			return DocumentView{}, err
		}
		doc.FolderID = patch.FolderID.Value
	}
	if patch.CaseID.Set {
		if err := s.existingCase(ctx, actor, patch.CaseID.Value); err != nil {
			return DocumentView{}, err
		}
		doc.CaseID = patch.CaseID.Value
	}
	if patch.IsArchived != nil {
		doc.IsArchived = *patch.IsArchived
	}

	updated, err := s.store.UpdateDocument(ctx, doc)
	if err != nil {
		return DocumentView{}, orNotFound(err, "Document not found")
	}
	return documentView(updated), nil
}

// FolderArchive zips a folder recursively. Entries the caller may not read
// are left out without error.
func (s *Service) FolderArchive(ctx context.Context, actor Actor, folderID string) (string, []byte, error) {
	if err := s.requireBlobs(); err != nil {
		return "", nil, err
	}
	root, err := s.store.GetFolder(ctx, actor.CompanyID, folderID)
	if err != nil {
		return "", nil, orNotFound(err, "Folder not found")
	}
	access := s.newAccessChecker(actor)
	ok, err := access.folder(ctx, root)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, notFound("Folder not found")
	}

	archive := export.NewArchive()
	visited := make(map[string]struct{})
	if err := s.archiveFolder(ctx, access, archive, root, "", visited, 0); err != nil {
		return "", nil, err
	}
	data, err := archive.Bytes()
	if err != nil {
		return "", nil, err
	}
	return root.Name, data, nil
}

func (s *Service) archiveFolder(ctx context.Context, access *accessChecker, archive *export.Archive, folder store.Folder, prefix string, visited map[string]struct{}, depth int) error {
	if _, seen := visited[folder.ID]; seen || depth > maxFolderDepth {
		return nil
	}
	visited[folder.ID] = struct{}{}

	docs, err := s.store.ListFolderDocuments(ctx, folder.CompanyID, folder.ID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		ok, err := access.document(ctx, doc)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.addBlob(ctx, archive, prefix+documentEntryName(doc), doc); err != nil {
			return err
		}
	}

	children, err := s.store.ListChildFolders(ctx, folder.CompanyID, folder.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		ok, err := access.folder(ctx, child)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		childPrefix := prefix + util.ArchiveEntryName(child.Name, child.ID) + "/"
		if err := s.archiveFolder(ctx, access, archive, child, childPrefix, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func documentEntryName(doc store.Document) string {
	name := doc.OriginalFilename
	if name == "" {
		name = doc.Title
	}
	return util.ArchiveEntryName(name, doc.ID+doc.FileExtension)
}

// addBlob copies a document's object into the archive. Objects missing from
// storage are skipped.
func (s *Service) addBlob(ctx context.Context, archive *export.Archive, name string, doc store.Document) error {
	if err := s.requireBlobs(); err != nil {
		return err
	}
	body, err := s.blobs.Get(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("archive skips missing object", zap.String("document_id", doc.ID), zap.String("key", doc.FilePath))
		return nil
	}
	if err != nil {
		return err
	}
	defer body.Close()
	return archive.Add(name, doc.CreatedAt, body)
}
