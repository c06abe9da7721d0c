package app

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) calendarRoutes(r chi.Router) {
	r.Get("/calendar", s.handleListActivities)
	r.Post("/calendar/event", s.handleCreateEvent)
	r.Post("/calendar/task", s.handleCreateTask)
	r.Patch("/calendar/{activityID}", s.handleUpdateActivity)
	r.Delete("/calendar/{activityID}", s.handleDeleteActivity)
	r.Post("/calendar/{activityID}/toggle", s.handleToggleTask)
}

func (s *HTTPServer) handleListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyMine, _ := strconv.ParseBool(q.Get("only_mine"))
	items, err := s.service.ListActivities(r.Context(), actorFrom(r), CalendarListInput{
		Start:    q.Get("start"),
		End:      q.Get("end"),
		OnlyMine: onlyMine,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body CreateEventInput
	if !s.decode(w, r, &body) {
		return
	}
	event, err := s.service.CreateEvent(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body CreateTaskInput
	if !s.decode(w, r, &body) {
		return
	}
	task, err := s.service.CreateTask(r.Context(), actorFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *HTTPServer) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	activityID, ok := pathID(w, r, "activityID")
	if !ok {
		return
	}
	var body UpdateActivityInput
	if !s.decode(w, r, &body) {
		return
	}
	activity, err := s.service.UpdateActivity(r.Context(), actorFrom(r), activityID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (s *HTTPServer) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	activityID, ok := pathID(w, r, "activityID")
	if !ok {
		return
	}
	if err := s.service.DeleteActivity(r.Context(), actorFrom(r), activityID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	activityID, ok := pathID(w, r, "activityID")
	if !ok {
		return
	}
	task, err := s.service.ToggleTask(r.Context(), actorFrom(r), activityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
