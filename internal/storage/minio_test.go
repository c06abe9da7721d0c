package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestContentDisposition(t *testing.T) {
	if got := ContentDisposition(`re"port;,.pdf`, true); got != `attachment; filename="report.pdf"; filename*=UTF-8''report.pdf` {
		t.Fatalf("unexpected attachment header: %s", got)
	}
	if got := ContentDisposition("plan.png", false); !strings.HasPrefix(got, "inline;") {
		t.Fatalf("expected inline disposition, got %s", got)
	}
	if got := ContentDisposition("", true); got != "attachment" {
		t.Fatalf("expected bare attachment, got %s", got)
	}

	got := ContentDisposition("акт.pdf", true)
	if !strings.Contains(got, `filename="___.pdf"`) {
		t.Fatalf("expected ascii fallback, got %s", got)
	}
	if !strings.Contains(got, "filename*=UTF-8''%D0%B0%D0%BA%D1%82.pdf") {
		t.Fatalf("expected utf-8 form, got %s", got)
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("scan.PDF"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", got)
	}
	if got := ContentTypeFor("blob.unknownext"); got != defaultContentType {
		t.Fatalf("expected fallback type, got %s", got)
	}
}

func TestNewBlobStoreRequiresBucket(t *testing.T) {
	if _, err := NewBlobStore(Options{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

// Presigning is computed locally when the region is known.
func TestPresignedURLUsesPathStyle(t *testing.T) {
	store, err := NewBlobStore(Options{
		Endpoint:   "localhost:9000",
		AccessKey:  "minio",
		SecretKey:  "minio-secret",
		Bucket:     "crm-documents",
		Region:     "us-east-1",
		PresignTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	raw, err := store.PresignedURL(context.Background(), "documents/abc.pdf", "Заключение.pdf", true)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "localhost:9000" || u.Path != "/crm-documents/documents/abc.pdf" {
		t.Fatalf("expected path-style url, got %s", raw)
	}
	q := u.Query()
	if q.Get("X-Amz-Expires") != "900" {
		t.Fatalf("expected 900s expiry, got %q", q.Get("X-Amz-Expires"))
	}
	if !strings.HasPrefix(q.Get("response-content-disposition"), "attachment;") {
		t.Fatalf("missing disposition: %s", raw)
	}
	if q.Get("response-content-type") != "application/pdf" {
		t.Fatalf("unexpected content type: %q", q.Get("response-content-type"))
	}
}
