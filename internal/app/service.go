package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/authpw"
	"github.com/Wesp1nzee/crm-deploy/internal/config"
	"github.com/Wesp1nzee/crm-deploy/internal/email"
	"github.com/Wesp1nzee/crm-deploy/internal/export"
	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/search"
	"github.com/Wesp1nzee/crm-deploy/internal/session"
	"github.com/Wesp1nzee/crm-deploy/internal/storage"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"go.uber.org/zap"
)

const (
	SystemCompanyName = "SYSTEM_INTERNAL"
	SystemCompanyINN  = "0000000000"
)

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetCompanyUser(context.Context, string, string) (store.User, error)
	HasUserWithRole(context.Context, string) (bool, error)
	InsertUser(context.Context, store.User) (store.User, error)
	ListUsers(context.Context, store.UserFilter) ([]store.User, int, error)
	UpdateUser(context.Context, store.User) (store.User, error)
	MarkLogin(context.Context, string, time.Time) error
	MarkLogout(context.Context, string) error
	SuggestUsers(context.Context, string, string, int) ([]store.UserShort, error)
	ListCompanyUsers(context.Context, string, []string) ([]store.UserShort, error)

	GetCompany(context.Context, string) (store.Company, error)
	GetCompanyByINN(context.Context, string) (store.Company, error)
	CreateCompanyWithOwner(context.Context, store.Company, store.User) (store.Company, store.User, error)
	EnsureCompany(context.Context, store.Company) (store.Company, error)
	UpdateCompany(context.Context, store.Company) (store.Company, error)

	ListCases(context.Context, store.CaseScope, store.CaseFilter, time.Time) (store.CasePage, error)
	SuggestCases(context.Context, store.CaseScope, string, int) ([]store.CaseSuggestion, error)
	CaseFinancials(context.Context, store.CaseScope, time.Time) (store.FinancialAggregate, error)
	GetCase(context.Context, store.CaseScope, string) (store.Case, error)
	CaseNumberConflict(context.Context, string, string, string) (string, error)
	InsertCase(context.Context, store.Case) (store.Case, error)
	UpdateCase(context.Context, store.Case) (store.Case, error)
	SoftDeleteCase(context.Context, string, string) (bool, error)
	ListClientCases(context.Context, string, string) ([]store.Case, error)

	ListClients(context.Context, store.ClientFilter) ([]store.Client, int, error)
	SuggestClients(context.Context, string, string, int) ([]store.Client, error)
	GetClient(context.Context, string, string) (store.Client, error)
	InsertClient(context.Context, store.Client, *store.Contact) (store.Client, error)
	UpdateClient(context.Context, store.Client) (store.Client, error)
	DeleteClient(context.Context, string, string) ([]string, bool, error)
	GetContact(context.Context, string, string) (store.Contact, error)
	InsertContact(context.Context, store.Contact) (store.Contact, error)
	UpdateContact(context.Context, store.Contact) (store.Contact, error)
	DeleteContact(context.Context, string, string) (bool, error)

	GetFolder(context.Context, string, string) (store.Folder, error)
	InsertFolder(context.Context, store.Folder) (store.Folder, error)
	UpdateFolder(context.Context, store.Folder, func(context.Context, store.ParentLookup) error) (store.Folder, error)
	ListChildFolders(context.Context, string, string) ([]store.Folder, error)
	ListFolderEntries(context.Context, store.EntryQuery) ([]store.Folder, error)
	DeleteFolderTree(context.Context, string, string) ([]string, bool, error)

	GetDocument(context.Context, string, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) (store.Document, error)
	UpdateDocument(context.Context, store.Document) (store.Document, error)
	DeleteDocument(context.Context, string, string) (string, error)
	ListFolderDocuments(context.Context, string, string) ([]store.Document, error)
	ListCaseDocuments(context.Context, string, string) ([]store.Document, error)
	ListDocumentEntries(context.Context, store.EntryQuery) ([]store.Document, error)

	ListActivities(context.Context, store.ActivityFilter) ([]store.CalendarActivity, error)
	GetActivity(context.Context, string, string) (store.CalendarActivity, error)
	InsertActivity(context.Context, store.CalendarActivity, []string) (store.CalendarActivity, error)
	UpdateActivity(context.Context, store.CalendarActivity, []string) (store.CalendarActivity, error)
	DeleteActivity(context.Context, string, string) (bool, error)

	InsertMailMessage(context.Context, store.MailMessage) (store.MailMessage, error)
	ListCaseMail(context.Context, string) ([]store.MailMessage, error)
}

type sessionStore interface {
	Create(context.Context, session.Snapshot) (string, error)
	Resolve(context.Context, string) (session.Snapshot, error)
	Revoke(context.Context, string) error
	Ping(context.Context) error
}

type blobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key, filename string, download bool) (string, error)
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexCase(search.CaseRecord)
	IndexClient(search.ClientRecord)
	DeleteCase(string)
	DeleteClient(string)
}

type mailer interface {
	IsConfigured() bool
	Send(email.Message) error
	Sender() (address, name string)
}

type reporter interface {
	CaseReport(context.Context, export.CaseReport, export.Format) (*export.Result, error)
}

// Dependencies are the collaborators wired by cmd/api. Search, Mailer and
// Reports may be nil.
type Dependencies struct {
	Store    *store.PostgresStore
	Sessions *session.RedisStore
	Blobs    *storage.BlobStore
	Search   *search.Service
	Mailer   *email.Service
	Reports  *export.Service
	Logger   *zap.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	blobs     blobStore
	search    searchIndex
	mailer    mailer
	reports   reporter
	passwords *authpw.Service
	logger    *zap.Logger
	now       func() time.Time

	// async runs fire-and-forget work such as invitation mail.
	async func(func())
}

func New(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		store:     deps.Store,
		passwords: authpw.NewService(deps.Store),
		logger:    logger,
		now:       time.Now,
		async:     func(f func()) { go f() },
	}
	// Interfaces holding typed nil pointers would not compare equal to nil.
	if deps.Sessions != nil {
		s.sessions = deps.Sessions
	}
	if deps.Blobs != nil {
		s.blobs = deps.Blobs
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Mailer != nil {
		s.mailer = deps.Mailer
	}
	if deps.Reports != nil {
		s.reports = deps.Reports
	}
	return s
}

// Ping reports whether Postgres and the session cache are reachable.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.sessions != nil {
		checks["cache"] = s.sessions.Ping(ctx)
	}
	return checks
}

// Bootstrap creates the system company and the first administrator when they
// do not exist yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	company, err := s.store.EnsureCompany(ctx, store.Company{
		Name:     SystemCompanyName,
		INN:      SystemCompanyINN,
		Currency: "RUB",
		IsActive: true,
	})
	if err != nil {
		return fmt.Errorf("ensure system company: %w", err)
	}

	exists, err := s.store.HasUserWithRole(ctx, string(rbac.RoleAdmin))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := s.passwords.HashPassword(s.cfg.AdminPassword, authpw.MinOwnerPassword)
	if err != nil {
		return fmt.Errorf("admin password: %w", err)
	}
	admin, err := s.store.InsertUser(ctx, store.User{
		CompanyID:       company.ID,
		Email:           authpw.NormalizeEmail(s.cfg.AdminEmail),
		PasswordHash:    hash,
		FullName:        s.cfg.AdminFullName,
		Role:            string(rbac.RoleAdmin),
		CanAuthenticate: true,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("created initial administrator", zap.String("user_id", admin.ID), zap.String("email", admin.Email))
	return nil
}

// Actor is the authenticated caller, rebuilt from the session snapshot on
// every request.
type Actor struct {
	Token     string
	UserID    string
	CompanyID string
	Email     string
	FullName  string
	Role      rbac.Role
	Snapshot  session.Snapshot
}

func actorFromSnapshot(token string, snap session.Snapshot) Actor {
	a := Actor{
		Token:    token,
		UserID:   snap.UserID,
		Email:    snap.User.Email,
		FullName: snap.User.FullName,
		Role:     rbac.Normalize(snap.User.Role),
		Snapshot: snap,
	}
	if snap.Company != nil {
		a.CompanyID = snap.Company.ID
	}
	return a
}

func (a Actor) isExpert() bool {
	return a.Role == rbac.RoleExpert
}

// caseScope restricts experts to the cases assigned to them.
func (a Actor) caseScope() store.CaseScope {
	scope := store.CaseScope{CompanyID: a.CompanyID}
	if a.isExpert() {
		scope.AssigneeID = a.UserID
	}
	return scope
}

func (a Actor) expertID() string {
	if a.isExpert() {
		return a.UserID
	}
	return ""
}

func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// orNotFound turns sql.ErrNoRows into a 404 with message and passes other
// errors through.
func orNotFound(err error, message string) error {
	if isNotFound(err) {
		return notFound(message)
	}
	return err
}
