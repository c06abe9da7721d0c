package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "crm@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "crm@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "crm@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

type captured struct {
	addr string
	from string
	to   []string
	body string
}

func capturingService(cfg Config) (*Service, *captured) {
	svc := NewService(cfg)
	c := &captured{}
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.from, c.to, c.body = addr, from, to, string(msg)
		return nil
	}
	return svc, c
}

func TestSendUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.Send(Message{To: []string{"a@example.com"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendMultipartMessage(t *testing.T) {
	svc, c := capturingService(Config{Host: "smtp.example.com", Port: "2525", From: "crm@example.com", FromName: "CRM"})

	err := svc.Send(Message{
		To:      []string{"expert@example.com", "bad\r\nBcc: evil@example.com"},
		Subject: "Приглашение",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.addr != "smtp.example.com:2525" || c.from != "crm@example.com" {
		t.Fatalf("unexpected envelope: %s %s", c.addr, c.from)
	}
	if !strings.Contains(c.body, "multipart/alternative") || !strings.Contains(c.body, "<p>html body</p>") || !strings.Contains(c.body, "plain body") {
		t.Fatalf("missing parts:\n%s", c.body)
	}
	if strings.Contains(c.body, "\r\nBcc:") {
		t.Fatalf("header injection not stripped:\n%s", c.body)
	}
	if !strings.Contains(c.body, "Subject: =?utf-8?q?") {
		t.Fatalf("expected encoded subject:\n%s", c.body)
	}
}

func TestSendPlainMessage(t *testing.T) {
	svc, c := capturingService(Config{Host: "smtp.example.com", Port: "25", From: "crm@example.com"})
	if err := svc.Send(Message{To: []string{"a@example.com"}, Subject: "Hi", Text: "body"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(c.body, "Content-Type: text/plain; charset=UTF-8\r\n\r\nbody") {
		t.Fatalf("unexpected plain message:\n%s", c.body)
	}
}

func TestRenderInvitation(t *testing.T) {
	start := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	msg, err := RenderInvitation(InvitationData{
		CompanyName:   "Экспертиза",
		OrganizerName: "Петров",
		Title:         "Осмотр <объекта>",
		Location:      "ул. Ленина, 1",
		StartAt:       start,
		EndAt:         &end,
		CaseNumber:    "2024-17",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "Приглашение: Осмотр <объекта>" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "20.05.2024 10:00–11:30") || !strings.Contains(msg.Text, "Дело: 2024-17") {
		t.Fatalf("unexpected text body:\n%s", msg.Text)
	}
	if !strings.Contains(msg.HTML, "Осмотр &lt;объекта&gt;") {
		t.Fatalf("html body must escape title:\n%s", msg.HTML)
	}
}

func TestFormatWhenAllDay(t *testing.T) {
	start := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	if got := formatWhen(start, nil, true); got != "20.05.2024, весь день" {
		t.Fatalf("got %q", got)
	}
}
