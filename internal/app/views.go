package app

import (
	"encoding/json"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatDate(*t)
	return &v
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func newPagination(total, page, limit int) Pagination {
	page, limit = store.NormalizePage(page, limit, store.DefaultPageSize)
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: store.TotalPages(total, limit)}
}

type UserShortView struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name"`
}

func userShortViews(items []store.UserShort) []UserShortView {
	out := make([]UserShortView, 0, len(items))
	for _, u := range items {
		out = append(out, UserShortView{ID: u.ID, Email: u.Email, FullName: u.FullName})
	}
	return out
}

type UserView struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	Email           string          `json:"email"`
	FullName        string          `json:"full_name"`
	Role            string          `json:"role"`
	IsActive        bool            `json:"is_active"`
	CanAuthenticate bool            `json:"can_authenticate"`
	Specialization  *string         `json:"specialization"`
	Settings        json.RawMessage `json:"settings"`
	LastLogin       *time.Time      `json:"last_login"`
	CreatedAt       time.Time       `json:"created_at"`
	CountCase       *int            `json:"count_case,omitempty"`
}

func userView(u store.User) UserView {
	settings := u.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	return UserView{
		ID:              u.ID,
		CompanyID:       u.CompanyID,
		Email:           u.Email,
		FullName:        u.FullName,
		Role:            u.Role,
		IsActive:        u.IsActive,
		CanAuthenticate: u.CanAuthenticate,
		Specialization:  u.Specialization,
		Settings:        settings,
		LastLogin:       u.LastLogin,
		CreatedAt:       u.CreatedAt,
	}
}

type CompanyView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	INN       string          `json:"inn"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	IsTrial   bool            `json:"is_trial"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func companyView(c store.Company) CompanyView {
	return CompanyView{
		ID:        c.ID,
		Name:      c.Name,
		INN:       c.INN,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		Balance:   c.Balance,
		Currency:  c.Currency,
		IsActive:  c.IsActive,
		IsTrial:   c.IsTrial,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type CaseView struct {
	ID                 string          `json:"id"`
	ClientID           string          `json:"client_id"`
	ClientName         string          `json:"client_name"`
	Number             string          `json:"number"`
	CaseNumber         string          `json:"case_number"`
	Authority          string          `json:"authority"`
	CaseType           string          `json:"case_type"`
	ObjectType         string          `json:"object_type"`
	ObjectAddress      string          `json:"object_address"`
	Status             string          `json:"status"`
	AssignedUserID     *string         `json:"assigned_user_id"`
	AssignedExpert     *UserShortView  `json:"assigned_expert"`
	StartDate          string          `json:"start_date"`
	Deadline           string          `json:"deadline"`
	CompletionDate     *string         `json:"completion_date"`
	Cost               decimal.Decimal `json:"cost"`
	BankTransferAmount decimal.Decimal `json:"bank_transfer_amount"`
	CashAmount         decimal.Decimal `json:"cash_amount"`
	RemainingDebt      decimal.Decimal `json:"remaining_debt"`
	Plaintiff          string          `json:"plaintiff"`
	Defendant          string          `json:"defendant"`
	ExpertPainting     string          `json:"expert_painting"`
	ArchiveStatus      string          `json:"archive_status"`
	Remarks            string          `json:"remarks"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func caseView(c store.Case) CaseView {
	v := CaseView{
		ID:                 c.ID,
		ClientID:           c.ClientID,
		ClientName:         c.ClientName,
		Number:             c.Number,
		CaseNumber:         c.CaseNumber,
		Authority:          c.Authority,
		CaseType:           c.CaseType,
		ObjectType:         c.ObjectType,
		ObjectAddress:      c.ObjectAddress,
		Status:             c.Status,
		AssignedUserID:     c.AssignedUserID,
		StartDate:          formatDate(c.StartDate),
		Deadline:           formatDate(c.Deadline),
		CompletionDate:     formatDatePtr(c.CompletionDate),
		Cost:               c.Cost,
		BankTransferAmount: c.BankTransferAmount,
		CashAmount:         c.CashAmount,
		RemainingDebt:      c.RemainingDebt,
		Plaintiff:          c.Plaintiff,
		Defendant:          c.Defendant,
		ExpertPainting:     c.ExpertPainting,
		ArchiveStatus:      c.ArchiveStatus,
		Remarks:            c.Remarks,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if c.AssignedUserID != nil {
		v.AssignedExpert = &UserShortView{ID: *c.AssignedUserID, Email: c.ExpertEmail, FullName: c.ExpertName}
	}
	return v
}

type CaseSummaryView struct {
	Active    int `json:"active"`
	Overdue   int `json:"overdue"`
	Completed int `json:"completed"`
}

type CaseListView struct {
	Data       []CaseView      `json:"data"`
	Pagination Pagination      `json:"pagination"`
	Summary    CaseSummaryView `json:"summary"`
}

type CaseSuggestionView struct {
	ID         string `json:"id"`
	Number     string `json:"number"`
	CaseNumber string `json:"case_number"`
}

type FinancialSummaryView struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	PendingPayments int             `json:"pending_payments"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	AverageCaseCost decimal.Decimal `json:"average_case_cost"`
	TotalCases      int             `json:"total_cases"`
	CompletedCases  int             `json:"completed_cases"`
	ActiveCases     int             `json:"active_cases"`
	OverdueCases    int             `json:"overdue_cases"`
}

type CaseDetailView struct {
	Case            CaseView          `json:"case"`
	Client          ClientView        `json:"client"`
	AssignedExperts []UserShortView   `json:"assigned_experts"`
	Documents       []DocumentView    `json:"documents"`
	Events          []MailMessageView `json:"events"`
}

type ContactView struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Position    string    `json:"position"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	IsMain      bool      `json:"is_main"`
	ContactType string    `json:"contact_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func contactView(c store.Contact) ContactView {
	return ContactView{
		ID:          c.ID,
		ClientID:    c.ClientID,
		Name:        c.Name,
		Position:    c.Position,
		Email:       c.Email,
		Phone:       c.Phone,
		IsMain:      c.IsMain,
		ContactType: c.ContactType,
		CreatedAt:   c.CreatedAt,
	}
}

type ClientView struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Name          string        `json:"name"`
	ShortName     string        `json:"short_name"`
	INN           string        `json:"inn"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	LegalAddress  string        `json:"legal_address"`
	ActualAddress string        `json:"actual_address"`
	TotalCases    int           `json:"total_cases"`
	ActiveCases   int           `json:"active_cases"`
	Contacts      []ContactView `json:"contacts"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func clientView(c store.Client) ClientView {
	contacts := make([]ContactView, 0, len(c.Contacts))
	for _, ct := range c.Contacts {
		contacts = append(contacts, contactView(ct))
	}
	return ClientView{
		ID:            c.ID,
		Type:          c.Type,
		Name:          c.Name,
		ShortName:     c.ShortName,
		INN:           c.INN,
		Email:         c.Email,
		Phone:         c.Phone,
		LegalAddress:  c.LegalAddress,
		ActualAddress: c.ActualAddress,
		TotalCases:    c.TotalCases,
		ActiveCases:   c.ActiveCases,
		Contacts:      contacts,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type ClientListView struct {
	Data       []ClientView `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

type FolderView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    *string   `json:"parent_id"`
	CaseID      *string   `json:"case_id"`
	CreatedByID *string   `json:"created_by_id"`
	CreatorName string    `json:"creator_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func folderView(f store.Folder) FolderView {
	return FolderView{
		ID:          f.ID,
		Name:        f.Name,
		ParentID:    f.ParentID,
		CaseID:      f.CaseID,
		CreatedByID: f.CreatedByID,
		CreatorName: f.CreatedByName,
		CreatedAt:   f.CreatedAt,
	}
}

type DocumentView struct {
	ID               string    `json:"id"`
	CaseID           *string   `json:"case_id"`
	FolderID         *string   `json:"folder_id"`
	FolderName       string    `json:"folder_name,omitempty"`
	Title            string    `json:"title"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	FileExtension    string    `json:"file_extension"`
	Version          int       `json:"version"`
	IsArchived       bool      `json:"is_archived"`
	UploadedByID     *string   `json:"uploaded_by_id"`
	UploadedByName   string    `json:"uploaded_by_name"`
	CreatedAt        time.Time `json:"created_at"`
}

func documentView(d store.Document) DocumentView {
	return DocumentView{
		ID:               d.ID,
		CaseID:           d.CaseID,
		FolderID:         d.FolderID,
		FolderName:       d.FolderName,
		Title:            d.Title,
		OriginalFilename: d.OriginalFilename,
		FileSize:         d.FileSize,
		MimeType:         d.MimeType,
		FileExtension:    d.FileExtension,
		Version:          d.Version,
		IsArchived:       d.IsArchived,
		UploadedByID:     d.UploadedByID,
		UploadedByName:   d.UploadedByName,
		CreatedAt:        d.CreatedAt,
	}
}

func documentViews(items []store.Document) []DocumentView {
	out := make([]DocumentView, 0, len(items))
	for _, d := range items {
		out = append(out, documentView(d))
	}
	return out
}

// EntryType distinguishes folders from files in the unified listing.
type EntryType string

const (
	EntryFolder EntryType = "folder"
	EntryFile   EntryType = "file"
)

type EntryView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          EntryType `json:"type"`
	Size          *int64    `json:"size"`
	Extension     *string   `json:"extension"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedByID   *string   `json:"created_by_id"`
	CreatedByName string    `json:"created_by_name"`
	ParentID      *string   `json:"parent_id"`
}

type ActivityView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Color       string          `json:"color"`
	StartAt     time.Time       `json:"start_at"`
	EndAt       *time.Time      `json:"end_at"`
	AllDay      bool            `json:"all_day"`
	IsCompleted bool            `json:"is_completed"`
	CompletedAt *time.Time      `json:"completed_at"`
	Location    string          `json:"location"`
	Status      string          `json:"status"`
	CaseID      *string         `json:"case_id"`
	ClientID    *string         `json:"client_id"`
	CreatorID   *string         `json:"creator_id"`
	Attendees   []UserShortView `json:"attendees"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func activityView(a store.CalendarActivity) ActivityView {
	return ActivityView{
		ID:          a.ID,
		Type:        a.Type,
		Title:       a.Title,
		Description: a.Description,
		Color:       a.Color,
		StartAt:     a.StartAt,
		EndAt:       a.EndAt,
		AllDay:      a.AllDay,
		IsCompleted: a.IsCompleted,
		CompletedAt: a.CompletedAt,
		Location:    a.Location,
		Status:      a.Status,
		CaseID:      a.CaseID,
		ClientID:    a.ClientID,
		CreatorID:   a.CreatorID,
		Attendees:   userShortViews(a.Attendees),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type MailMessageView struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	SenderEmail string     `json:"sender_email"`
	SenderName  string     `json:"sender_name"`
	MessageType string     `json:"message_type"`
	Status      string     `json:"status"`
	BodyText    string     `json:"body_text"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func mailMessageView(m store.MailMessage) MailMessageView {
	return MailMessageView{
		ID:          m.ID,
		Subject:     m.Subject,
		SenderEmail: m.SenderEmail,
		SenderName:  m.SenderName,
		MessageType: m.MessageType,
		Status:      m.Status,
		BodyText:    m.BodyText,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
	}
}
