package filter

import (
	"testing"
)

func TestFilter_Allows_IncludeMode(t *testing.T) {
	f, err := New(Options{Include: []string{"(?i)smith"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows("John Smith") {
		t.Error("Expected recipient to be allowed (include matches)")
	}
	if f.Allows("Jane Doe") {
		t.Error("Expected recipient to be filtered out (include doesn't match)")
	}
}

func TestFilter_Allows_ExcludeMode(t *testing.T) {
	f, err := New(Options{Exclude: []string{"^Unknown Recipient$", "Test"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows("John Smith") {
		t.Error("Expected recipient to be allowed (no exclude match)")
	}
	if f.Allows("Unknown Recipient") {
		t.Error("Expected unknown recipient to be filtered out")
	}
	if f.Allows("Test Account") {
		t.Error("Expected test recipient to be filtered out")
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	_, err := New(Options{Include: []string{"a"}, Exclude: []string{"b"}})
	if err == nil {
		t.Error("Expected error when both include and exclude are specified")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := New(Options{Include: []string{"("}})
	if err == nil {
		t.Error("Expected error for invalid regex")
	}
}

func TestFilter_NoPatterns(t *testing.T) {
	f, err := New(Options{Include: []string{"  ", ""}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.Active() {
		t.Error("Expected blank patterns to be ignored")
	}
	if !f.Allows("anyone") {
		t.Error("Expected everything to be allowed without patterns")
	}
}
