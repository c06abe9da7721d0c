package util

import (
	"strings"
	"testing"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	if !IsID(id) {
		t.Fatalf("expected uuid, got %q", id)
	}
	if IsID("not-a-uuid") {
		t.Fatal("IsID accepted garbage")
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("Report.PDF")
	if !strings.HasPrefix(key, "documents/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if len(key) != len("documents/")+36+len(".pdf") {
		t.Fatalf("unexpected key length %q", key)
	}
	if key := ObjectKey("noext"); strings.Contains(strings.TrimPrefix(key, "documents/"), ".") {
		t.Fatalf("expected no extension, got %q", key)
	}
}

func TestSanitizeHeaderName(t *testing.T) {
	got := SanitizeHeaderName(`a"b'c;d,e f`)
	if got != "abcde f" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeObjectName(t *testing.T) {
	got := SanitizeObjectName("отчёт (final)/v2.pdf")
	if strings.ContainsAny(got, "()/") {
		t.Fatalf("unsafe characters survived: %q", got)
	}
	if !strings.HasSuffix(got, "v2.pdf") {
		t.Fatalf("extension lost: %q", got)
	}
}

func TestArchiveEntryName(t *testing.T) {
	if got := ArchiveEntryName("../etc/passwd", "x"); strings.Contains(got, "/") {
		t.Fatalf("path separator survived: %q", got)
	}
	if got := ArchiveEntryName(` "; `, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
