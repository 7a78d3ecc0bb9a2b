package core

import (
	"context"
	"fmt"
	"testing"
)

func TestStep_Validate(t *testing.T) {
	valid := Step{ID: "s1", Description: "do work", Kind: KindResearch}

	tests := []struct {
		name    string
		mutate  func(*Step)
		wantErr bool
	}{
		{"valid", func(*Step) {}, false},
		{"empty id", func(s *Step) { s.ID = "" }, true},
		{"empty description", func(s *Step) { s.Description = "" }, true},
		{"unknown kind", func(s *Step) { s.Kind = "daydreaming" }, true},
		{"self dependency", func(s *Step) { s.Dependencies = []StepID{"s1"} }, true},
		{"negative cost", func(s *Step) { s.EstimatedCost = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid.Clone()
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStep_CloneIsDeep(t *testing.T) {
	s := Step{
		ID:           "s1",
		Description:  "do work",
		Kind:         KindResearch,
		Dependencies: []StepID{"s0"},
		Capabilities: []string{"web_search"},
	}
	c := s.Clone()
	c.Dependencies[0] = "other"
	c.Capabilities[0] = "other"

	if s.Dependencies[0] != "s0" || s.Capabilities[0] != "web_search" {
		t.Error("Clone() must not share slices with the original")
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"timeout category", ErrTimeout("deadline"), FailureTimeout},
		{"context deadline", fmt.Errorf("run step: %w", context.DeadlineExceeded), FailureTimeout},
		{"tool category", ErrToolCreation("web_search", nil), FailureToolUnavailable},
		{"provider category", ErrProvider("upstream down"), FailureProviderError},
		{"unclassified", ErrState("X", "corrupt"), FailureProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFailure(tt.err); got != tt.want {
				t.Errorf("ClassifyFailure() = %s, want %s", got, tt.want)
			}
		})
	}
}
