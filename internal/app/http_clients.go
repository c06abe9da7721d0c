package app

import (
	"net/http"

	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) clientRoutes(r chi.Router) {
	r.Get("/clients", s.handleListClients)
	r.Post("/clients", s.handleCreateClient)
	r.Get("/clients/suggest", s.handleSuggestClients)
	r.Get("/clients/{clientID}", s.handleGetClient)
	r.Patch("/clients/{clientID}", s.handleUpdateClient)
	r.Delete("/clients/{clientID}", s.handleDeleteClient)
	r.Post("/clients/{clientID}/contacts", s.handleCreateContact)
	r.Patch("/clients/{clientID}/contacts/{contactID}", s.handleUpdateContact)
	r.Delete("/clients/{clientID}/contacts/{contactID}", s.handleDeleteContact)
}

func (s *HTTPServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.service.ListClients(r.Context(), actorFrom(r), store.ClientFilter{
		Type:   q.Get("type"),
		Search: q.Get("search"),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var body CreateClientInput
	if !s.decode(w, r, &body) {
		return
	}
	client, err := s.service.CreateClient(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *HTTPServer) handleSuggestClients(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.SuggestClients(r.Context(), actorFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetClient(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	client, err := s.service.GetClient(r.Context(), actorFrom(r), clientID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *HTTPServer) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	var body UpdateClientInput
	if !s.decode(w, r, &body) {
		return
	}
	client, err := s.service.UpdateClient(r.Context(), actorFrom(r), clientID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *HTTPServer) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	if err := s.service.DeleteClient(r.Context(), actorFrom(r), clientID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	var body ContactInput
	if !s.decode(w, r, &body) {
		return
	}
	contact, err := s.service.CreateContact(r.Context(), actorFrom(r), clientID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (s *HTTPServer) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactID")
	if !ok {
		return
	}
	var body UpdateContactInput
	if !s.decode(w, r, &body) {
		return
	}
	contact, err := s.service.UpdateContact(r.Context(), actorFrom(r), clientID, contactID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (s *HTTPServer) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, "contactID")
	if !ok {
		return
	}
	if err := s.service.DeleteContact(r.Context(), actorFrom(r), clientID, contactID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
