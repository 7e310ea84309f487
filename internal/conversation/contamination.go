package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/internal/observability/metrics"
	"github.com/seonho-lim/aide/pkg/logging"
)

var contaminationTracer = otel.Tracer("aide/contamination")

const contaminationPrompt = `You check a candidate answer for topical bleed-through from the previous exchange. Respond with JSON only.

Previous exchange:
Q: %s
A: %s

New question: %s

Candidate answer:
%s

Contamination means the candidate answer carries over detail from the previous exchange that is irrelevant to the new question (e.g. the old topic's facts, names, or framing showing up uninvited). Detail that the new question actually builds on is NOT contamination. Score 0-100 where 0 is fully clean. If contaminated, provide a cleaned answer with the carried-over material removed.

Respond with: {"isContaminated": <bool>, "contaminationScore": <0-100>, "contaminatedSegments": ["<segment>", ...], "explanation": "<one sentence>", "cleanedResponse": "<text or empty>"}`

// ContaminationDetector checks a candidate response for inappropriate
// carry-over from the immediately prior exchange and can substitute a
// cleaned response.
type ContaminationDetector struct {
	client  llm.Client
	metrics *metrics.TurnMetrics
	logger  *logging.Logger
}

// NewContaminationDetector creates a contamination detector. m may be nil.
func NewContaminationDetector(client llm.Client, m *metrics.TurnMetrics, logger *logging.Logger) *ContaminationDetector {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ContaminationDetector{client: client, metrics: m, logger: logger}
}

// Detect judges the candidate response. Like the other judges it is total:
// model or parse failures yield a clean assessment rather than an error, so
// the candidate response always survives.
func (d *ContaminationDetector) Detect(ctx context.Context, prevQ, prevA, newQ, candidate string) ContaminationAssessment {
	ctx, span := contaminationTracer.Start(ctx, "contamination.detect")
	defer span.End()

	clean := ContaminationAssessment{IsContaminated: false, ContaminationScore: 0}

	prompt := fmt.Sprintf(contaminationPrompt, prevQ, prevA, newQ, candidate)
	resp, err := d.client.Complete(ctx, llm.Request{
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("contamination judgment unavailable, treating response as clean", "error", err)
		return clean
	}

	block, ok := extractJSONBlock(resp.Text)
	if !ok {
		d.metrics.ObserveJudgeParseFailure("contamination")
		d.logger.Warn("contamination output had no JSON block, treating response as clean",
			"output", truncateForLog(resp.Text))
		return clean
	}

	var assessment ContaminationAssessment
	if err := json.Unmarshal([]byte(block), &assessment); err != nil {
		d.metrics.ObserveJudgeParseFailure("contamination")
		d.logger.Warn("contamination output failed to decode, treating response as clean", "error", err)
		return clean
	}
	assessment.ContaminationScore = clampScore(assessment.ContaminationScore)
	assessment.CleanedResponse = strings.TrimSpace(assessment.CleanedResponse)

	if assessment.IsContaminated {
		d.logger.Info("contamination detected",
			"score", assessment.ContaminationScore,
			"segments", len(assessment.ContaminatedSegments),
			"cleaned_available", assessment.CleanedResponse != "",
		)
	}

	span.SetAttributes(
		attribute.Bool("contamination.detected", assessment.IsContaminated),
		attribute.Int("contamination.score", assessment.ContaminationScore),
	)
	return assessment
}
