package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) userRoutes(r chi.Router) {
	r.Post("/users/logout", s.handleLogout)
	r.Get("/users/me", s.handleMe)
	r.Get("/users", s.handleListUsers)
	r.Post("/users", s.handleCreateUser)
	r.Get("/users/suggest", s.handleSuggestUsers)
	r.Patch("/users/{userID}", s.handleUpdateUser)
	r.Patch("/users/{userID}/access", s.handleUserAccess)
}

func (s *HTTPServer) companyRoutes(r chi.Router) {
	r.Get("/companies/me", s.handleGetCompany)
	r.Patch("/companies/me", s.handleUpdateCompany)
}

// handleLogin refuses to stack a second session on a client that already
// holds one.
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if sessionToken(r) != "" {
		writeError(w, http.StatusBadRequest, "ALREADY_AUTHENTICATED", "Already logged in", nil)
		return
	}
	var body LoginInput
	if !s.decode(w, r, &body) {
		return
	}
	token, snap, err := s.service.Login(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), actorFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actorFrom(r).Snapshot)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	isActive, err := queryBool(r, "is_active")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	result, err := s.service.ListUsers(r.Context(), actorFrom(r), UserListInput{
		Role:      q.Get("role"),
		IsActive:  isActive,
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body CreateUserInput
	if !s.decode(w, r, &body) {
		return
	}
	user, err := s.service.CreateUser(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleSuggestUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.SuggestUsers(r.Context(), actorFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var body UpdateUserInput
	if !s.decode(w, r, &body) {
		return
	}
	user, err := s.service.UpdateUser(r.Context(), actorFrom(r), userID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUserAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var body UserAccessInput
	if !s.decode(w, r, &body) {
		return
	}
	user, err := s.service.SetUserAccess(r.Context(), actorFrom(r), userID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleRegisterCompany(w http.ResponseWriter, r *http.Request) {
	var body RegisterCompanyInput
	if !s.decode(w, r, &body) {
		return
	}
	token, snap, err := s.service.RegisterCompany(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *HTTPServer) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.service.GetCompany(r.Context(), actorFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	var body UpdateCompanyInput
	if !s.decode(w, r, &body) {
		return
	}
	company, err := s.service.UpdateCompany(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}
