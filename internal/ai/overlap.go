package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// EventProfile is the slice of an event that matters for audience analysis.
type EventProfile struct {
	Title       string
	Category    string
	Subcategory string
	City        string
	Description string
}

// OverlapClassification is the structured output of the audience-overlap
// classification call. Scores are date-independent; temporal and scale
// adjustments happen downstream.
type OverlapClassification struct {
	OverlapScore          float64  `json:"overlap_score"`
	Confidence            float64  `json:"confidence"`
	TargetAudience1       string   `json:"target_audience_1"`
	TargetAudience2       string   `json:"target_audience_2"`
	SharedTopics          []string `json:"shared_topics"`
	Motivation            string   `json:"motivation"`
	DemographicSimilarity float64  `json:"demographic_similarity"`
	InterestAlignment     float64  `json:"interest_alignment"`
	BehaviorPattern       float64  `json:"behavior_pattern"`
	HistoricalPreference  float64  `json:"historical_preference"`
	Reasons               []string `json:"reasons"`
}

// Validate rejects malformed classifier output so the caller can route to
// the rule-based fallback instead of trusting a bogus shape.
func (c *OverlapClassification) Validate() error {
	if c.OverlapScore < 0 || c.OverlapScore > 0.95 {
		return fmt.Errorf("overlap_score %.3f outside [0, 0.95]", c.OverlapScore)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0, 1]", c.Confidence)
	}
	for name, v := range map[string]float64{
		"demographic_similarity": c.DemographicSimilarity,
		"interest_alignment":     c.InterestAlignment,
		"behavior_pattern":       c.BehaviorPattern,
		"historical_preference":  c.HistoricalPreference,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s %.3f outside [0, 1]", name, v)
		}
	}
	if len(c.Reasons) == 0 {
		return fmt.Errorf("no reasons returned")
	}
	if len(c.Reasons) > 3 {
		c.Reasons = c.Reasons[:3]
	}
	return nil
}

// ClassifyAudienceOverlap asks the LLM how much audience two events share.
func ClassifyAudienceOverlap(ctx context.Context, client Completer, planned, competing EventProfile) (*OverlapClassification, error) {
	prompt := fmt.Sprintf(`You are an expert event audience analyst. Estimate how much audience the two events below would share if they ran close together.

EVENT A (planned):
Title: %s
Category: %s / %s
City: %s
Description: %s

EVENT B (competing):
Title: %s
Category: %s / %s
City: %s
Description: %s

Instructions:
1. Infer each event's target audience, the topics they share, and the motivation to attend.
2. Produce overlap_score: the fraction of EVENT A's audience that EVENT B would draw away, between 0 and 0.95. Never exceed 0.95.
3. Score four factors between 0 and 1: demographic_similarity, interest_alignment, behavior_pattern, historical_preference.
4. Give exactly 3 short reasons a human organizer would understand.
5. Ignore dates entirely; timing is handled elsewhere.

Return ONLY a JSON object:
{
  "overlap_score": number,
  "confidence": number,
  "target_audience_1": "string",
  "target_audience_2": "string",
  "shared_topics": ["string"],
  "motivation": "string",
  "demographic_similarity": number,
  "interest_alignment": number,
  "behavior_pattern": number,
  "historical_preference": number,
  "reasons": ["string", "string", "string"]
}`,
		planned.Title, planned.Category, planned.Subcategory, planned.City, truncate(planned.Description, 1500),
		competing.Title, competing.Category, competing.Subcategory, competing.City, truncate(competing.Description, 1500))

	// JSON mode first; some models still wrap output in prose, so fall back
	// to text mode plus robust extraction.
	resp, err := client.GenerateCompletion(ctx, prompt, true)
	if err == nil {
		if result, parseErr := parseOverlapResponse(resp); parseErr == nil {
			return result, nil
		} else {
			log.Printf("JSON mode failed parsing: %v. Retrying with text mode...", parseErr)
		}
	} else {
		log.Printf("JSON mode generation failed: %v. Retrying with text mode...", err)
	}

	resp, err = client.GenerateCompletion(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	result, err := parseOverlapResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse overlap JSON after retry: %w (response: %s)", err, resp)
	}
	return result, nil
}

func parseOverlapResponse(resp string) (*OverlapClassification, error) {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	if jsonStr, ok := extractFirstJSONObject(cleaned); ok {
		cleaned = jsonStr
	}

	var result OverlapClassification
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classification shape: %w", err)
	}
	return &result, nil
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
