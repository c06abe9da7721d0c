package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Company struct {
	ID        string
	Name      string
	INN       string
	Email     string
	Phone     string
	Address   string
	Balance   decimal.Decimal
	Currency  string
	IsActive  bool
	IsTrial   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID              string
	CompanyID       string
	Email           string
	PasswordHash    string
	FullName        string
	Role            string
	IsActive        bool
	CanAuthenticate bool
	Specialization  *string
	Settings        json.RawMessage
	LastLogin       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// CaseCount is only populated by ListUsers.
	CaseCount int
}

type UserShort struct {
	ID       string
	Email    string
	FullName string
}

type Client struct {
	ID            string
	CompanyID     string
	Type          string
	Name          string
	ShortName     string
	INN           string
	Email         string
	Phone         string
	LegalAddress  string
	ActualAddress string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TotalCases    int
	ActiveCases   int
	Contacts      []Contact
}

type Contact struct {
	ID          string
	ClientID    string
	Name        string
	Position    string
	Email       string
	Phone       string
	IsMain      bool
	ContactType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Case struct {
	ID                 string
	ClientID           string
	Number             string
	CaseNumber         string
	Authority          string
	CaseType           string
	ObjectType         string
	ObjectAddress      string
	Status             string
	AssignedUserID     *string
	StartDate          time.Time
	Deadline           time.Time
	CompletionDate     *time.Time
	Cost               decimal.Decimal
	BankTransferAmount decimal.Decimal
	CashAmount         decimal.Decimal
	RemainingDebt      decimal.Decimal
	Plaintiff          string
	Defendant          string
	ExpertPainting     string
	ArchiveStatus      string
	Remarks            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time

	// Joined columns, read-only.
	ClientName  string
	ExpertName  string
	ExpertEmail string
}

// Payments is the amount received so far.
func (c Case) Payments() decimal.Decimal {
	return c.BankTransferAmount.Add(c.CashAmount)
}

type CaseSuggestion struct {
	ID         string
	Number     string
	CaseNumber string
}

type CaseSummary struct {
	Active    int
	Overdue   int
	Completed int
}

type CasePage struct {
	Items   []Case
	Total   int
	Summary CaseSummary
}

// FinancialAggregate holds the raw sums behind the financial summary.
type FinancialAggregate struct {
	TotalCases      int
	ActiveCases     int
	CompletedCases  int
	OverdueCases    int
	Revenue         decimal.Decimal
	PendingPayments int
	PendingAmount   decimal.Decimal
}

type Folder struct {
	ID            string
	CompanyID     string
	Name          string
	ParentID      *string
	CaseID        *string
	CreatedByID   *string
	CreatedByName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Document struct {
	ID               string
	CompanyID        string
	CaseID           *string
	FolderID         *string
	UploadedByID     *string
	UploadedByName   string
	FolderName       string
	Title            string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	MimeType         string
	FileExtension    string
	Version          int
	IsArchived       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CalendarActivity struct {
	ID          string
	CompanyID   string
	Type        string
	CreatorID   *string
	Title       string
	Description string
	Color       string
	StartAt     time.Time
	EndAt       *time.Time
	AllDay      bool
	IsCompleted bool
	CompletedAt *time.Time
	Location    string
	Status      string
	CaseID      *string
	ClientID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Attendees   []UserShort
}

type MailMessage struct {
	ID          string
	ThreadID    string
	UserID      *string
	CaseID      *string
	SenderEmail string
	SenderName  string
	Subject     string
	MessageType string
	Status      string
	BodyText    string
	BodyHTML    string
	SizeBytes   int64
	Recipients  []MailRecipient
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

type MailRecipient struct {
	Email string
	Name  string
	Type  string
}
