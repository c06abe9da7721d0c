package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var statusLabels = map[string]string{
	"in_work":   "В работе",
	"debt":      "Долг",
	"executed":  "Исполнено",
	"withdrawn": "Отозвано",
	"cancelled": "Отменено",
	"archive":   "Архив",
	"fssp":      "ФССП",
}

var funcMap = template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	"money":       formatMoney,
	"statusLabel": statusLabel,
	"fileSize":    formatFileSize,
}

var caseReportTemplate *template.Template

func init() {
	content, err := templateFS.ReadFile("templates/case_report.html")
	if err != nil {
		caseReportTemplate = template.Must(template.New("case_report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	caseReportTemplate = template.Must(template.New("case_report").Funcs(funcMap).Parse(string(content)))
}

// RenderCaseReportHTML renders the report template. Text fields are escaped.
func RenderCaseReportHTML(report CaseReport) (string, error) {
	var buf bytes.Buffer
	if err := caseReportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// formatMoney prints two decimals, space-grouped thousands and a ruble sign.
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if s[0] == '-' {
		sign, s = "-", s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var grouped []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, ' ')
		}
		grouped = append(grouped, intPart[i])
	}
	return sign + string(grouped) + "," + frac + " ₽"
}

func formatFileSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Б", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cБ", float64(n)/float64(div), []rune("КМГТ")[exp])
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Number}}</title></head>
<body>
  <h1>{{.Number}} / {{.CaseNumber}}</h1>
  <p>{{statusLabel .Status}} · {{.ClientName}}</p>
  <p>{{money .Cost}} · {{money .RemainingDebt}}</p>
</body>
</html>`
