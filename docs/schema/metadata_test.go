package schema

import (
	"bytes"
	"testing"

	"talentcore/pkg/domain"
)

func TestLifecycleVersion(t *testing.T) {
	got, err := LifecycleVersion()
	if err != nil {
		t.Fatalf("LifecycleVersion: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty lifecycle version")
	}
	doc, _ := LoadLifecycle()
	if doc.Metadata.Status == "" || doc.Metadata.Source == "" {
		t.Fatalf("expected status and source, got %+v", doc.Metadata)
	}
}

func TestLifecycleDocumentMatchesRegistry(t *testing.T) {
	doc, err := LoadLifecycle()
	if err != nil {
		t.Fatalf("LoadLifecycle: %v", err)
	}
	if doc.Entry != string(domain.StatusNew) {
		t.Fatalf("unexpected entry status %s", doc.Entry)
	}
	statuses := domain.Statuses()
	if len(doc.Statuses) != len(statuses) {
		t.Fatalf("document lists %d statuses, registry has %d", len(doc.Statuses), len(statuses))
	}
	for _, s := range doc.Statuses {
		if !domain.IsKnownStatus(domain.Status(s)) {
			t.Fatalf("document status %s unknown to registry", s)
		}
	}
	terminal := map[string]bool{}
	for _, s := range doc.Terminal {
		terminal[s] = true
	}
	for _, s := range statuses {
		if domain.IsTerminal(s) != terminal[string(s)] {
			t.Fatalf("terminal mismatch for %s", s)
		}
	}
	for role, targets := range doc.Roles {
		allowed := map[string]bool{}
		for _, target := range targets {
			allowed[target] = true
		}
		for _, target := range statuses {
			decision := domain.Validate(domain.StatusInReview, target, domain.Role(role), true)
			if target == domain.StatusInReview || target == domain.StatusNew {
				continue
			}
			if (decision == domain.Allowed) != allowed[string(target)] {
				t.Fatalf("role %s target %s: document says %v, registry says %s", role, target, allowed[string(target)], decision)
			}
		}
	}
}

func TestLifecycleDocumentReturnsCopy(t *testing.T) {
	doc := LifecycleDocument()
	doc[0] ^= 0xFF
	if bytes.Equal(doc, lifecycleDoc) {
		t.Fatalf("LifecycleDocument did not return a copy")
	}
}
