package evidence

import (
	"context"

	"kpiflow/internal/domain/apperr"
)

type ScoreRequest struct {
	Rubric       string
	Title        string
	TargetValue  float64
	Unit         string
	EvidenceText string
}

type ScoreResult struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// Scorer grades evidence against a rubric. Implementations make a single
// attempt and report failures as ErrOracleUnavailable, ErrOracleTimeout or
// ErrOracleMalformed.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

var (
	ErrOracleUnavailable = apperr.New(apperr.KindExternal, "oracle_unavailable", "scoring service unavailable")
	ErrOracleTimeout     = apperr.New(apperr.KindExternal, "oracle_timeout", "scoring service timed out")
	ErrOracleMalformed   = apperr.New(apperr.KindExternal, "oracle_malformed", "scoring service returned an unusable response")

	ErrEvidenceEmpty    = apperr.New(apperr.KindValidation, "evidence_empty", "evidence file contains no readable text")
	ErrEvidenceTooLarge = apperr.New(apperr.KindValidation, "evidence_too_large", "evidence file is too large")
	ErrEvidenceType     = apperr.New(apperr.KindValidation, "evidence_type_unsupported", "evidence must be a pdf or plain text file")
)
