package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Wesp1nzee/crm-deploy/internal/util"
	"github.com/go-chi/chi/v5"
)

const (
	maxUploadSize   = 200 << 20
	multipartMemory = 32 << 20
)

func (s *HTTPServer) documentRoutes(r chi.Router) {
	r.Get("/documents", s.handleListEntries)
	r.Post("/documents/folders", s.handleCreateFolder)
	r.Post("/documents/upload", s.handleUpload)
	r.Patch("/documents/update", s.handleUpdateAsset)
	r.Get("/documents/folders/{folderID}/download", s.handleFolderArchive)
	r.Delete("/documents/folders/{folderID}", s.handleDeleteFolder)
	r.Get("/documents/{documentID}/url", s.handleDocumentURL)
	r.Delete("/documents/{documentID}", s.handleDeleteDocument)
}

// optionalFormID reads an optional UUID; empty values mean "none".
func optionalFormID(raw, name string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "root" {
		return nil, nil
	}
	if !util.IsID(raw) {
		return nil, badRequest(name + " must be a UUID")
	}
	return &raw, nil
}

func (s *HTTPServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folderID, err := optionalFormID(q.Get("folder_id"), "folder_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caseID, err := optionalFormID(q.Get("case_id"), "case_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	input := EntryListInput{
		FolderID: folderID,
		Search:   q.Get("search"),
		SortBy:   q.Get("sort_by"),
		Order:    q.Get("order"),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	if caseID != nil {
		input.CaseID = *caseID
	}
	entries, err := s.service.ListEntries(r.Context(), actorFrom(r), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body CreateFolderInput
	if !s.decode(w, r, &body) {
		return
	}
	folder, err := s.service.CreateFolder(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid multipart form", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	caseID, err := optionalFormID(r.FormValue("case_id"), "case_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	folderID, err := optionalFormID(r.FormValue("folder_id"), "folder_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	doc, err := s.service.UploadDocument(r.Context(), actorFrom(r), UploadInput{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
		Title:    r.FormValue("title"),
		CaseID:   caseID,
		FolderID: folderID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *HTTPServer) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var body UpdateAssetInput
	if !s.decode(w, r, &body) {
		return
	}
	updated, err := s.service.UpdateAsset(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "documentID")
	if !ok {
		return
	}
	download, _ := strconv.ParseBool(r.URL.Query().Get("download"))
	link, err := s.service.DocumentURL(r.Context(), actorFrom(r), documentID, download)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": link})
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "documentID")
	if !ok {
		return
	}
	if err := s.service.DeleteDocument(r.Context(), actorFrom(r), documentID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	folderID, ok := pathID(w, r, "folderID")
	if !ok {
		return
	}
	if err := s.service.DeleteFolder(r.Context(), actorFrom(r), folderID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleFolderArchive(w http.ResponseWriter, r *http.Request) {
	folderID, ok := pathID(w, r, "folderID")
	if !ok {
		return
	}
	name, data, err := s.service.FolderArchive(r.Context(), actorFrom(r), folderID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, zipDisposition(name), "application/zip", data)
}
