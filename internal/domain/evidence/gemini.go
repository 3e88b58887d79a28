package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// TextGenerator is the prompt-to-text call the Gemini scorer relies on.
// *gemini.Client satisfies it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

type GeminiScorer struct {
	gen TextGenerator
}

func NewGeminiScorer(gen TextGenerator) *GeminiScorer {
	return &GeminiScorer{gen: gen}
}

const maxEvidenceChars = 30000

func (g *GeminiScorer) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	text, err := g.gen.Generate(ctx, buildScorePrompt(req), 0.1)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ScoreResult{}, ErrOracleTimeout
		}
		return ScoreResult{}, ErrOracleUnavailable.Withf("scoring service unavailable: %v", err)
	}
	return ParseScore(text)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func buildScorePrompt(req ScoreRequest) string {
	evidence := truncateUTF8(req.EvidenceText, maxEvidenceChars)
	var b strings.Builder
	b.WriteString("You are auditing evidence submitted for an employee KPI.\n")
	fmt.Fprintf(&b, "KPI title: %s\n", req.Title)
	if req.TargetValue > 0 {
		fmt.Fprintf(&b, "Target: %g %s\n", req.TargetValue, req.Unit)
	}
	fmt.Fprintf(&b, "Rubric: %s\n\n", req.Rubric)
	b.WriteString("Evidence:\n")
	b.WriteString(evidence)
	b.WriteString("\n\nScore the achieved value on the same scale as the target, based only on the evidence.\n")
	b.WriteString(`Respond with strict JSON and nothing else: {"score": <number>, "justification": "<one or two sentences>"}`)
	return b.String()
}

// ParseScore reads a scoring response. Code fences are ignored and the
// first {...} object is decoded. A missing field or a negative or
// non-finite score is malformed.
func ParseScore(text string) (ScoreResult, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return ScoreResult{}, ErrOracleMalformed.Withf("response is not json")
	}
	var payload struct {
		Score         *float64 `json:"score"`
		Justification *string  `json:"justification"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ScoreResult{}, ErrOracleMalformed.Withf("decode response: %v", err)
	}
	if payload.Score == nil || payload.Justification == nil {
		return ScoreResult{}, ErrOracleMalformed.Withf("response is missing score or justification")
	}
	score := *payload.Score
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return ScoreResult{}, ErrOracleMalformed.Withf("score %v is out of range", score)
	}
	return ScoreResult{Score: score, Justification: strings.TrimSpace(*payload.Justification)}, nil
}

func extractJSON(text string) (string, bool) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
