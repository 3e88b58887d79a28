package devplan

import (
	"context"
	"fmt"
)

// TextGenerator is satisfied by *gemini.Client.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

type GeminiGenerator struct {
	gen TextGenerator
}

func NewGeminiGenerator(gen TextGenerator) *GeminiGenerator {
	return &GeminiGenerator{gen: gen}
}

func (g *GeminiGenerator) GeneratePlan(ctx context.Context, req PlanRequest) (string, error) {
	role := req.JobTitle
	if role == "" {
		role = "Employee"
	}
	prompt := fmt.Sprintf(`You are a Senior HR Talent Developer.
Employee: %s
Role: %s
Performance Summary for the period: %s

Based on this data, generate a professional 3-month Development Plan.
Include the following sections in Markdown format:
### 1. Key Strengths
### 2. Growth Opportunities
### 3. 3-Month Action Roadmap
- **Month 1**: focus and specific tasks
- **Month 2**: focus and specific tasks
- **Month 3**: focus and specific tasks
### 4. Recommended Training/Certifications
`, req.EmployeeName, role, req.Summary())
	return g.gen.Generate(ctx, prompt, 0.4)
}
