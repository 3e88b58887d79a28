package evidence

import (
	"context"
	"log/slog"
	"strings"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
)

// KPIWriter is the slice of the KPI service that evidence needs.
type KPIWriter interface {
	Get(ctx context.Context, actor auth.Actor, id string) (kpi.KPI, error)
	AttachEvidence(ctx context.Context, actor auth.Actor, id string, ev kpi.Evidence) (kpi.KPI, error)
	AuditTarget(ctx context.Context, actor auth.Actor, id string) (kpi.KPI, error)
	ApplyAuditScore(ctx context.Context, actor auth.Actor, id string, score float64, justification string) (kpi.KPI, kpi.Comment, error)
}

type Service struct {
	kpis     KPIWriter
	scorer   Scorer
	blobs    BlobStore
	maxBytes int64
}

func NewService(kpis KPIWriter, scorer Scorer, blobs BlobStore, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Service{kpis: kpis, scorer: scorer, blobs: blobs, maxBytes: maxBytes}
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload extracts text from an evidence file, stores the original and
// attaches both to the KPI. The blob is removed again if the KPI rejects
// the attachment.
func (s *Service) Upload(ctx context.Context, actor auth.Actor, kpiID, filename string, data []byte) (kpi.KPI, error) {
	if int64(len(data)) > s.maxBytes {
		return kpi.KPI{}, ErrEvidenceTooLarge.Withf("evidence exceeds %d bytes", s.maxBytes)
	}
	text, err := ExtractText(filename, data)
	if err != nil {
		return kpi.KPI{}, err
	}

	var url string
	if s.blobs != nil {
		url, err = s.blobs.Put(ctx, filename, data)
		if err != nil {
			return kpi.KPI{}, err
		}
	}
	updated, err := s.kpis.AttachEvidence(ctx, actor, kpiID, kpi.Evidence{
		URL:     url,
		Name:    strings.TrimSpace(filename),
		RawText: text,
	})
	if err != nil {
		if url != "" {
			if delErr := s.blobs.Delete(ctx, url); delErr != nil {
				slog.Warn("evidence blob cleanup failed", "url", url, "err", delErr)
			}
		}
		return kpi.KPI{}, err
	}
	return updated, nil
}

// Download returns the stored evidence file of a KPI the actor can view.
func (s *Service) Download(ctx context.Context, actor auth.Actor, kpiID string) (string, []byte, error) {
	k, err := s.kpis.Get(ctx, actor, kpiID)
	if err != nil {
		return "", nil, err
	}
	if k.EvidenceURL == "" || s.blobs == nil {
		return "", nil, kpi.ErrKPINotFound.Withf("kpi has no stored evidence file")
	}
	data, err := s.blobs.Get(ctx, k.EvidenceURL)
	if err != nil {
		return "", nil, kpi.ErrKPINotFound.Withf("evidence file unavailable: %v", err)
	}
	return k.EvidenceName, data, nil
}

type AuditResult struct {
	KPI           kpi.KPI     `json:"kpi"`
	Comment       kpi.Comment `json:"comment"`
	Score         float64     `json:"score"`
	Justification string      `json:"justification"`
}

// Audit asks the scorer to grade a KPI's evidence and applies the score.
// Nothing is written when the scorer fails.
func (s *Service) Audit(ctx context.Context, actor auth.Actor, kpiID string) (AuditResult, error) {
	target, err := s.kpis.AuditTarget(ctx, actor, kpiID)
	if err != nil {
		return AuditResult{}, err
	}
	if s.scorer == nil {
		return AuditResult{}, ErrOracleUnavailable.Withf("no scoring service configured")
	}
	res, err := s.scorer.Score(ctx, ScoreRequest{
		Rubric:       target.Rubric,
		Title:        target.Title,
		TargetValue:  target.TargetValue,
		Unit:         target.Unit,
		EvidenceText: target.EvidenceRawText,
	})
	if err != nil {
		return AuditResult{}, err
	}
	updated, comment, err := s.kpis.ApplyAuditScore(ctx, actor, kpiID, res.Score, res.Justification)
	if err != nil {
		return AuditResult{}, err
	}
	return AuditResult{KPI: updated, Comment: comment, Score: res.Score, Justification: res.Justification}, nil
}
