package search

import (
	"context"

	"go.uber.org/zap"
)

type engine interface {
	Searcher
	Indexer
}

// Service is the facade that tries Meilisearch first and falls back to Postgres.
type Service struct {
	primary  engine
	fallback *Postgres
	logger   *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *Postgres, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{fallback: fallback, logger: logger.Named("search")}
	if meili != nil {
		s.primary = meili
	}
	return s
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries the primary engine if healthy, otherwise the Postgres fallback.
// Failures degrade to an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexCase pushes a case to the index in the background.
func (s *Service) IndexCase(r CaseRecord) {
	s.async("index case", r.ID, func(e engine) error { return e.IndexCases([]CaseRecord{r}) })
}

func (s *Service) IndexClient(r ClientRecord) {
	s.async("index client", r.ID, func(e engine) error { return e.IndexClients([]ClientRecord{r}) })
}

func (s *Service) DeleteCase(id string) {
	s.async("delete case", id, func(e engine) error { return e.DeleteCase(id) })
}

func (s *Service) DeleteClient(id string) {
	s.async("delete client", id, func(e engine) error { return e.DeleteClient(id) })
}

func (s *Service) async(op, id string, fn func(engine) error) {
	if !s.primaryReady() {
		return
	}
	primary := s.primary
	go func() {
		if err := fn(primary); err != nil {
			s.logger.Warn(op, zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG loads every case and client from Postgres and pushes them
// to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.primaryReady() || s.fallback == nil {
		return
	}
	cases, clients, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.primary.IndexCases(cases); err != nil {
		s.logger.Warn("reindex cases", zap.Error(err))
	}
	if err := s.primary.IndexClients(clients); err != nil {
		s.logger.Warn("reindex clients", zap.Error(err))
	}
	s.logger.Info("search reindexed", zap.Int("cases", len(cases)), zap.Int("clients", len(clients)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
