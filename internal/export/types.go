// Package export renders case reports to HTML, PDF and DOCX and builds ZIP
// archives of stored documents.
package export

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat defaults to PDF when v is empty.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case "":
		return FormatPDF, nil
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	}
	return "", ErrUnsupportedFormat
}

// CaseReport is everything printed on a case report.
type CaseReport struct {
	Number         string
	CaseNumber     string
	Status         string
	Authority      string
	CaseType       string
	ObjectType     string
	ObjectAddress  string
	Plaintiff      string
	Defendant      string
	StartDate      time.Time
	Deadline       time.Time
	CompletionDate *time.Time
	Remarks        string

	Cost               decimal.Decimal
	BankTransferAmount decimal.Decimal
	CashAmount         decimal.Decimal
	RemainingDebt      decimal.Decimal

	ClientName  string
	ClientINN   string
	ExpertName  string
	CompanyName string
	Contacts    []ReportContact
	Documents   []ReportDocument
	GeneratedAt time.Time
	GeneratedBy string
}

type ReportContact struct {
	Name     string
	Position string
	Phone    string
	Email    string
	IsMain   bool
}

type ReportDocument struct {
	Title      string
	FolderName string
	UploadedBy string
	UploadedAt time.Time
	SizeBytes  int64
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
