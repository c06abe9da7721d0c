package app

import (
	"context"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
)

// parseRFC3339 parses a time string in RFC3339 format, tolerating milliseconds
// from JavaScript's Date.toISOString() (e.g. "2026-03-12T16:10:00.000Z").
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t, err
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// canEditFolder allows privileged roles and the folder's creator.
func canEditFolder(actor Actor, f store.Folder) bool {
	return rbac.CanAccessOwned(actor.Role, actor.UserID, deref(f.CreatedByID))
}

// canEditDocument allows privileged roles and the uploader.
func canEditDocument(actor Actor, d store.Document) bool {
	return rbac.CanAccessOwned(actor.Role, actor.UserID, deref(d.UploadedByID))
}

// accessChecker answers read access for folders and documents. Besides the
// owner rule, an expert may read anything attached to a case assigned to them.
// Case visibility is cached for the lifetime of the checker.
type accessChecker struct {
	svc   *Service
	actor Actor
	cases map[string]bool
}

func (s *Service) newAccessChecker(actor Actor) *accessChecker {
	return &accessChecker{svc: s, actor: actor, cases: make(map[string]bool)}
}

func (a *accessChecker) caseVisible(ctx context.Context, caseID *string) (bool, error) {
	if caseID == nil {
		return false, nil
	}
	if ok, cached := a.cases[*caseID]; cached {
		return ok, nil
	}
	_, err := a.svc.store.GetCase(ctx, a.actor.caseScope(), *caseID)
	switch {
	case err == nil:
		a.cases[*caseID] = true
	case isNotFound(err):
		a.cases[*caseID] = false
	default:
		return false, err
	}
	return a.cases[*caseID], nil
}

func (a *accessChecker) folder(ctx context.Context, f store.Folder) (bool, error) {
	if canEditFolder(a.actor, f) {
		return true, nil
	}
	return a.caseVisible(ctx, f.CaseID)
}

func (a *accessChecker) document(ctx context.Context, d store.Document) (bool, error) {
	if canEditDocument(a.actor, d) {
		return true, nil
	}
	return a.caseVisible(ctx, d.CaseID)
}
