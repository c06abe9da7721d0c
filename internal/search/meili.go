package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const (
	idxCases   = "crm_cases"
	idxClients = "crm_clients"

	healthInterval = 10 * time.Second
)

type indexSpec struct {
	uid        string
	rtyp       ResultType
	filterable []string
	searchable []string
}

var indexSpecs = []indexSpec{
	{
		uid:        idxCases,
		rtyp:       ResultCase,
		filterable: []string{"companyId", "assigneeId", "clientId", "status"},
		searchable: []string{"number", "caseNumber", "clientName", "authority", "objectAddress", "plaintiff", "defendant"},
	},
	{
		uid:        idxClients,
		rtyp:       ResultClient,
		filterable: []string{"companyId", "type"},
		searchable: []string{"name", "shortName", "inn", "email"},
	},
}

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
	closed  atomic.Bool
}

// NewMeili connects to Meilisearch and starts a health monitor. An
// unreachable server is not an error: the instance stays unhealthy until the
// monitor sees it come back.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger.Named("meili"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, spec := range indexSpecs {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: spec.uid, PrimaryKey: "id"}); err != nil {
			m.logger.Debug("create index", zap.String("index", spec.uid), zap.Error(err))
		}

		index := m.client.Index(spec.uid)
		filterable := make([]interface{}, len(spec.filterable))
		for i, v := range spec.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.logger.Warn("update filterable attributes", zap.String("index", spec.uid), zap.Error(err))
		}
		searchable := append([]string(nil), spec.searchable...)
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			m.logger.Warn("update searchable attributes", zap.String("index", spec.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			switch {
			case err == nil && !wasHealthy:
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			case err != nil && wasHealthy:
				m.logger.Warn("meilisearch went down", zap.Error(err))
			}
		}
	}
}

// Close stops the health monitor. It is safe to call more than once.
func (m *Meili) Close() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.done)
	}
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs one query per target index, always filtered by tenant.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	queries := buildRequests(q)
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	results := make([]Result, 0)
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func buildRequests(q Query) []*meili.SearchRequest {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	queries := make([]*meili.SearchRequest, 0, len(indexSpecs))
	for _, spec := range indexSpecs {
		if q.FilterType != "" && q.FilterType != spec.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              spec.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			Filter:                filtersFor(spec.rtyp, q),
		})
	}
	return queries
}

func filtersFor(rtyp ResultType, q Query) []string {
	filters := []string{fmt.Sprintf("companyId = %q", q.CompanyID)}
	if rtyp == ResultCase && q.AssigneeID != "" {
		filters = append(filters, fmt.Sprintf("assigneeId = %q", q.AssigneeID))
	}
	return filters
}

func indexToResultType(uid string) ResultType {
	for _, spec := range indexSpecs {
		if spec.uid == uid {
			return spec.rtyp
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeString(hit, "id")}
	switch rtyp {
	case ResultCase:
		r.Title = firstNonBlank(decodeFormattedString(hit, "number"), decodeString(hit, "number"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "clientName"), decodeString(hit, "clientName"),
			decodeFormattedString(hit, "caseNumber"), decodeString(hit, "caseNumber"))
		r.ClientID = decodeString(hit, "clientId")
		r.Status = decodeString(hit, "status")
	case ResultClient:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "inn"), decodeString(hit, "inn"), decodeString(hit, "email"))
		r.ClientID = r.ID
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexCases(records []CaseRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCases).AddDocuments(records, nil)
	return err
}

func (m *Meili) IndexClients(records []ClientRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxClients).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteCase(id string) error {
	_, err := m.client.Index(idxCases).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteClient(id string) error {
	_, err := m.client.Index(idxClients).DeleteDocument(id, nil)
	return err
}
