package ai

import (
	"context"
	"errors"
	"testing"
)

const validJSON = `{
	"overlap_score": 0.62,
	"confidence": 0.8,
	"target_audience_1": "AI engineers",
	"target_audience_2": "Tech founders",
	"shared_topics": ["machine learning"],
	"motivation": "professional networking",
	"demographic_similarity": 0.7,
	"interest_alignment": 0.8,
	"behavior_pattern": 0.6,
	"historical_preference": 0.5,
	"reasons": ["Shared practitioner base", "Same sponsor pool", "Common speaker circuit"]
}`

func TestParseOverlapResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		wantErr bool
	}{
		{"plain json", validJSON, false},
		{"markdown fenced", "```json\n" + validJSON + "\n```", false},
		{"prose wrapped", "Here is my analysis:\n" + validJSON + "\nHope that helps!", false},
		{"not json", "the overlap is probably high", true},
		{"score out of range", `{"overlap_score": 1.4, "confidence": 0.5, "reasons": ["x"]}`, true},
		{"negative factor", `{"overlap_score": 0.4, "confidence": 0.5, "interest_alignment": -0.2, "reasons": ["x"]}`, true},
		{"missing reasons", `{"overlap_score": 0.4, "confidence": 0.5}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseOverlapResponse(tt.resp)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.OverlapScore != 0.62 {
				t.Errorf("expected overlap_score 0.62, got %f", result.OverlapScore)
			}
			if len(result.Reasons) != 3 {
				t.Errorf("expected 3 reasons, got %d", len(result.Reasons))
			}
		})
	}
}

func TestValidateTruncatesReasons(t *testing.T) {
	c := &OverlapClassification{
		OverlapScore: 0.3,
		Confidence:   0.5,
		Reasons:      []string{"a", "b", "c", "d", "e"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Reasons) != 3 {
		t.Errorf("expected reasons capped at 3, got %d", len(c.Reasons))
	}
}

// scriptedCompleter fails JSON mode and answers in text mode, exercising the
// retry path.
type scriptedCompleter struct {
	jsonErr  error
	textResp string
}

func (s *scriptedCompleter) GenerateCompletion(_ context.Context, _ string, jsonMode bool) (string, error) {
	if jsonMode {
		if s.jsonErr != nil {
			return "", s.jsonErr
		}
		return "I cannot answer in JSON", nil
	}
	return s.textResp, nil
}

func TestClassifyFallsBackToTextMode(t *testing.T) {
	client := &scriptedCompleter{jsonErr: errors.New("model busy"), textResp: "Sure:\n" + validJSON}

	result, err := ClassifyAudienceOverlap(context.Background(), client,
		EventProfile{Title: "A", Category: "Technology"},
		EventProfile{Title: "B", Category: "Technology"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OverlapScore != 0.62 {
		t.Errorf("expected parsed score from text mode, got %f", result.OverlapScore)
	}
}
