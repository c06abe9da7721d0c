package app

import "net/http"

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.service.Search(r.Context(), actorFrom(r), SearchInput{
		Query:  q.Get("q"),
		Type:   q.Get("type"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
