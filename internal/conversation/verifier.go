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

var verifierTracer = otel.Tracer("aide/verifier")

const verifierPrompt = `You check a generated answer for factual grounding. Judge ONLY from the supplied context; outside knowledge does not count as support. Respond with JSON only.

Question: %s
Timestamp: %s

Supplied context:
%s

Generated answer:
%s

List any claims in the answer that the supplied context does not support. If the answer is not fully supported, provide an improved answer that uses only the supplied context and admits uncertainty where the context is silent.

Respond with: {"isReliable": <bool>, "confidenceScore": <0-100>, "hallucinations": ["<claim>", ...], "recommendation": "<one sentence>", "improvedResponse": "<text or empty>"}`

// ResponseVerifier checks a generated answer against the assembled context for
// unsupported claims and can substitute an improved answer.
type ResponseVerifier struct {
	client  llm.Client
	metrics *metrics.TurnMetrics
	logger  *logging.Logger
}

// NewResponseVerifier creates a response verifier. m may be nil.
func NewResponseVerifier(client llm.Client, m *metrics.TurnMetrics, logger *logging.Logger) *ResponseVerifier {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ResponseVerifier{client: client, metrics: m, logger: logger}
}

// Verify judges the response against the payload. The original response is
// never discarded on a parsing problem: failures degrade to an unreliable
// assessment carrying the original text.
func (v *ResponseVerifier) Verify(ctx context.Context, payload *ContextPayload, response string) VerificationAssessment {
	ctx, span := verifierTracer.Start(ctx, "verifier.verify")
	defer span.End()

	degraded := VerificationAssessment{
		IsReliable:       false,
		ConfidenceScore:  0,
		VerifiedResponse: response,
	}

	prompt := fmt.Sprintf(verifierPrompt,
		payload.Question,
		payload.Timestamp.Format("2006-01-02 15:04:05"),
		renderContextBlocks(payload),
		response,
	)
	resp, err := v.client.Complete(ctx, llm.Request{
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		v.logger.Warn("verification unavailable, passing response through", "error", err)
		return degraded
	}

	block, ok := extractJSONBlock(resp.Text)
	if !ok {
		v.metrics.ObserveJudgeParseFailure("verifier")
		v.logger.Warn("verifier output had no JSON block, passing response through",
			"output", truncateForLog(resp.Text))
		return degraded
	}

	var decoded struct {
		VerificationAssessment
		ImprovedResponse string `json:"improvedResponse"`
	}
	if err := json.Unmarshal([]byte(block), &decoded); err != nil {
		v.metrics.ObserveJudgeParseFailure("verifier")
		v.logger.Warn("verifier output failed to decode, passing response through", "error", err)
		return degraded
	}

	assessment := decoded.VerificationAssessment
	assessment.ConfidenceScore = clampScore(assessment.ConfidenceScore)
	assessment.VerifiedResponse = response
	if !assessment.IsReliable && strings.TrimSpace(decoded.ImprovedResponse) != "" {
		assessment.VerifiedResponse = strings.TrimSpace(decoded.ImprovedResponse)
		v.logger.Info("verifier substituted improved response",
			"confidence", assessment.ConfidenceScore,
			"hallucinations", len(assessment.Hallucinations),
		)
	}

	span.SetAttributes(
		attribute.Bool("verifier.reliable", assessment.IsReliable),
		attribute.Int("verifier.confidence", assessment.ConfidenceScore),
	)
	return assessment
}

func renderContextBlocks(payload *ContextPayload) string {
	var b strings.Builder
	for _, block := range payload.Blocks {
		if !block.Present {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", block.Source, block.Text)
	}
	if b.Len() == 0 {
		return "(no context was supplied this turn)"
	}
	return strings.TrimSpace(b.String())
}
