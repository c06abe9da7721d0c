package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCase   ResultType = "case"
	ResultClient ResultType = "client"
)

// ParseResultType accepts "", "case" and "client".
func ParseResultType(v string) (ResultType, bool) {
	switch ResultType(v) {
	case "":
		return "", true
	case ResultCase, ResultClient:
		return ResultType(v), true
	}
	return "", false
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ClientID string     `json:"client_id,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Query describes a search request. CompanyID is mandatory; AssigneeID
// restricts case hits for experts.
type Query struct {
	Text       string
	FilterType ResultType
	CompanyID  string
	AssigneeID string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type Indexer interface {
	IndexCases(records []CaseRecord) error
	IndexClients(records []ClientRecord) error
	DeleteCase(id string) error
	DeleteClient(id string) error
}

// CaseRecord is the data we index for a case.
type CaseRecord struct {
	ID            string `json:"id"`
	CompanyID     string `json:"companyId"`
	AssigneeID    string `json:"assigneeId"`
	ClientID      string `json:"clientId"`
	ClientName    string `json:"clientName"`
	Number        string `json:"number"`
	CaseNumber    string `json:"caseNumber"`
	Authority     string `json:"authority"`
	ObjectAddress string `json:"objectAddress"`
	Plaintiff     string `json:"plaintiff"`
	Defendant     string `json:"defendant"`
	Status        string `json:"status"`
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	INN       string `json:"inn"`
	Email     string `json:"email"`
	Type      string `json:"type"`
}
