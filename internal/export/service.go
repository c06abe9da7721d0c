package export

import (
	"context"
	"fmt"
	"strings"
)

type converter func(ctx context.Context, html string) ([]byte, error)

// Service renders case reports.
type Service struct {
	pdf  converter
	docx converter
}

func NewService() *Service {
	return &Service{pdf: htmlToPDF, docx: htmlToDOCX}
}

// CaseReport renders report in format. The filename is derived from the case number.
func (s *Service) CaseReport(ctx context.Context, report CaseReport, format Format) (*Result, error) {
	html, err := RenderCaseReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	base := "case-" + sanitizeFilename(report.Number)

	switch format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	case FormatDOCX:
		data, err := s.docx(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: base + ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// sanitizeFilename keeps ASCII letters, digits, dashes and underscores,
// turning spaces and slashes into dashes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '/', r == '\\':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "report"
	}
	return result
}
