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

var topicTracer = otel.Tracer("aide/topic-shift")

const (
	resetSimilarityThreshold    = 30
	resetContaminationThreshold = 70
	neutralSimilarity           = 50
)

const topicShiftPrompt = `You judge whether a new question continues the topic of the previous exchange. Respond with JSON only.

Previous exchange:
Q: %s
A: %s

New question: %s

Judge topical continuity, not surface wording: a follow-up like "show me an example of that" continues the topic even with no shared words. Score similarity 0-100 where 100 means the same topic and 0 means completely unrelated.

Respond with: {"isNewTopic": <bool>, "similarity": <0-100>, "analysis": "<one sentence>", "shouldResetContext": <bool>}`

// TopicShiftDetector judges whether a new question starts a new topic relative
// to the previous exchange. It is a total function: when the model cannot be
// reached or its output cannot be parsed, the neutral assessment is returned
// instead of an error.
type TopicShiftDetector struct {
	client  llm.Client
	metrics *metrics.TurnMetrics
	logger  *logging.Logger
}

// NewTopicShiftDetector creates a topic-shift detector. metrics may be nil.
func NewTopicShiftDetector(client llm.Client, m *metrics.TurnMetrics, logger *logging.Logger) *TopicShiftDetector {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TopicShiftDetector{client: client, metrics: m, logger: logger}
}

// neutralTopicAssessment is returned whenever the judgment cannot be made.
// A misclassification must never crash the turn.
func neutralTopicAssessment() TopicAssessment {
	return TopicAssessment{
		IsNewTopic:         false,
		Similarity:         neutralSimilarity,
		ShouldResetContext: false,
	}
}

// Assess classifies the new question against the previous exchange. Callers
// skip this entirely on the first turn of a thread.
func (d *TopicShiftDetector) Assess(ctx context.Context, prevQ, prevA, newQ string) TopicAssessment {
	ctx, span := topicTracer.Start(ctx, "topic.assess")
	defer span.End()

	prompt := fmt.Sprintf(topicShiftPrompt, prevQ, prevA, newQ)
	resp, err := d.client.Complete(ctx, llm.Request{
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("topic-shift judgment unavailable, using neutral default", "error", err)
		return neutralTopicAssessment()
	}

	block, ok := extractJSONBlock(resp.Text)
	if !ok {
		d.logger.Warn("topic-shift output had no JSON block, using neutral default",
			"output", truncateForLog(resp.Text))
		d.metrics.ObserveJudgeParseFailure("topic_shift")
		return neutralTopicAssessment()
	}

	var assessment TopicAssessment
	if err := json.Unmarshal([]byte(block), &assessment); err != nil {
		d.logger.Warn("topic-shift output failed to decode, using neutral default", "error", err)
		d.metrics.ObserveJudgeParseFailure("topic_shift")
		return neutralTopicAssessment()
	}
	assessment.Similarity = clampScore(assessment.Similarity)

	span.SetAttributes(
		attribute.Bool("topic.is_new", assessment.IsNewTopic),
		attribute.Int("topic.similarity", assessment.Similarity),
		attribute.Bool("topic.should_reset", assessment.ShouldResetContext),
	)
	return assessment
}

// ResetWarranted applies the reset rule independently of the model's own
// shouldResetContext flag: low topical similarity and high contamination are
// each sufficient on their own.
func ResetWarranted(similarity, contaminationScore int) bool {
	return similarity < resetSimilarityThreshold || contaminationScore > resetContaminationThreshold
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func truncateForLog(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
