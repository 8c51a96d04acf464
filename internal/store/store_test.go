package store

import (
	"context"
	"regexp"
	"testing"
)

func TestNewReference(t *testing.T) {
	pattern := regexp.MustCompile(`^TX-[0-9A-F]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		ref := newReference()
		if !pattern.MatchString(ref) {
			t.Fatalf("newReference() = %q", ref)
		}
		seen[ref] = true
	}
	if len(seen) < 45 {
		t.Errorf("references repeat too often: %d distinct of 50", len(seen))
	}
}

func TestSaveAliasRejectsUnsafeKeys(t *testing.T) {
	s := &Store{}
	tests := []string{"", "  ", "home.town", "$where"}
	for _, alias := range tests {
		t.Run(alias, func(t *testing.T) {
			if err := s.SaveAlias(context.Background(), "+447700900123", alias, "52A David Road"); err == nil {
				t.Errorf("SaveAlias(%q) should fail", alias)
			}
		})
	}
}
