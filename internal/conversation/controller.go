package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/internal/observability/metrics"
	"github.com/seonho-lim/aide/internal/stats"
	"github.com/seonho-lim/aide/pkg/logging"
)

var controllerTracer = otel.Tracer("aide/controller")

// apologyFallback is what the user sees when the turn could not produce an
// answer. It is deliberately generic; the real failure is in the logs.
const apologyFallback = "죄송합니다. 일시적인 문제로 답변을 드리지 못했어요. 잠시 후 다시 시도해 주세요."

// ErrEmptyMessage rejects turns with no usable question before any state is
// touched.
var ErrEmptyMessage = errors.New("conversation: message is empty")

// ErrMissingThreadID rejects turns without a thread identity.
var ErrMissingThreadID = errors.New("conversation: threadID is empty")

// StatsRecorder is the slice of the stats repository the controller uses.
// Recording is best-effort; a stats failure never fails the turn.
type StatsRecorder interface {
	RecordTurn(ctx context.Context, event stats.TurnEvent) error
	DeleteThread(ctx context.Context, threadID string) error
}

// SessionController drives one turn through the full pipeline: reset check,
// context assembly, generation, verification, contamination check, persist.
// Every step after validation degrades rather than fails; callers get an
// apology fallback only when the turn produced nothing usable.
type SessionController struct {
	history       *HistoryStore
	summaries     *SummaryStore
	index         SimilarityIndex
	assembler     *ContextAssembler
	topics        *TopicShiftDetector
	verifier      *ResponseVerifier
	contamination *ContaminationDetector
	client        llm.Client
	stats         StatsRecorder
	metrics       *metrics.TurnMetrics
	logger        *logging.Logger

	model        string
	maxTokens    int
	temperature  float32
	similarLimit int
}

// ControllerOption configures the session controller.
type ControllerOption func(*SessionController)

// WithStats wires a best-effort turn stats recorder.
func WithStats(recorder StatsRecorder) ControllerOption {
	return func(c *SessionController) {
		c.stats = recorder
	}
}

// WithGenerationModel sets the model identifier passed to the client for the
// answer-generation call.
func WithGenerationModel(model string) ControllerOption {
	return func(c *SessionController) {
		c.model = model
	}
}

// WithGenerationLimits bounds the answer-generation call.
func WithGenerationLimits(maxTokens int, temperature float32) ControllerOption {
	return func(c *SessionController) {
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
		c.temperature = temperature
	}
}

// WithSimilarLimit caps how many past exchanges the similarity index
// contributes per turn.
func WithSimilarLimit(limit int) ControllerOption {
	return func(c *SessionController) {
		if limit > 0 {
			c.similarLimit = limit
		}
	}
}

// NewSessionController wires the pipeline. All stage dependencies are
// required; stats and metrics are optional.
func NewSessionController(
	history *HistoryStore,
	summaries *SummaryStore,
	index SimilarityIndex,
	assembler *ContextAssembler,
	topics *TopicShiftDetector,
	verifier *ResponseVerifier,
	contamination *ContaminationDetector,
	client llm.Client,
	m *metrics.TurnMetrics,
	logger *logging.Logger,
	opts ...ControllerOption,
) *SessionController {
	if history == nil || summaries == nil || index == nil || assembler == nil {
		panic("conversation: controller stores cannot be nil")
	}
	if topics == nil || verifier == nil || contamination == nil {
		panic("conversation: controller judges cannot be nil")
	}
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &SessionController{
		history:       history,
		summaries:     summaries,
		index:         index,
		assembler:     assembler,
		topics:        topics,
		verifier:      verifier,
		contamination: contamination,
		client:        client,
		metrics:       m,
		logger:        logger,
		maxTokens:     1024,
		temperature:   0.7,
		similarLimit:  3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn processes one user message end to end and returns the final
// response together with the turn's integrity scores. Stage failures degrade
// and the turn keeps going; the caller only gets an error for invalid input.
func (c *SessionController) HandleTurn(ctx context.Context, threadID, userMessage string) (result *TurnResult, err error) {
	ctx, span := controllerTracer.Start(ctx, "controller.handle_turn")
	defer span.End()

	threadID = strings.TrimSpace(threadID)
	userMessage = strings.TrimSpace(userMessage)
	if threadID == "" {
		return nil, ErrMissingThreadID
	}
	if userMessage == "" {
		return nil, ErrEmptyMessage
	}

	turnID := uuid.NewString()
	span.SetAttributes(
		attribute.String("aide.thread_id", threadID),
		attribute.String("aide.turn_id", turnID),
	)
	log := c.logger.With("thread_id", threadID, "turn_id", turnID)

	// Whatever breaks mid-pipeline, the user gets the apology line and the
	// process stays up.
	defer func() {
		if r := recover(); r != nil {
			log.Error("turn pipeline panicked", "panic", r)
			c.metrics.ObserveTurn("panic")
			result = &TurnResult{ThreadID: threadID, TurnID: turnID, Response: apologyFallback}
			err = nil
		}
	}()

	history, histErr := c.history.Read(ctx, threadID)
	if histErr != nil {
		log.Warn("history read failed, proceeding without history", "error", histErr)
		history = nil
	}

	prevQ, prevA, hasPrev := LastPair(history)
	topic := neutralTopicAssessment()
	if hasPrev {
		topic = c.topics.Assess(ctx, prevQ, prevA, userMessage)
	}
	reset := hasPrev && (topic.ShouldResetContext || ResetWarranted(topic.Similarity, 0))
	if reset {
		c.metrics.ObserveReset("topic_shift")
		log.Info("context reset on topic shift",
			"similarity", topic.Similarity, "is_new_topic", topic.IsNewTopic)
	}

	var summary string
	var similar []SimilarMatch
	if !reset {
		var sumErr error
		summary, sumErr = c.summaries.Get(ctx, threadID)
		if sumErr != nil {
			log.Warn("summary read failed, proceeding without summary", "error", sumErr)
		}
		var simErr error
		similar, simErr = c.index.Query(ctx, threadID, userMessage, c.similarLimit)
		if simErr != nil {
			log.Warn("similarity query failed, proceeding without matches", "error", simErr)
		}
	}

	payload := c.assembler.Assemble(ctx, AssembleInput{
		ThreadID: threadID,
		Question: userMessage,
		Reset:    reset,
		Summary:  summary,
		Similar:  similar,
	})

	raw := c.generate(ctx, payload, log)

	final := raw
	confidence := 0
	contaminationScore := 0
	if raw != "" {
		verification := c.verifier.Verify(ctx, payload, raw)
		confidence = verification.ConfidenceScore
		c.metrics.ObserveConfidence(confidence)
		final = verification.VerifiedResponse

		// Carry-over can only come from a prior exchange, and a reset already
		// severed that link this turn.
		if hasPrev && !reset {
			assessment := c.contamination.Detect(ctx, prevQ, prevA, userMessage, final)
			contaminationScore = assessment.ContaminationScore
			c.metrics.ObserveContamination(contaminationScore)
			if assessment.IsContaminated && assessment.CleanedResponse != "" {
				final = assessment.CleanedResponse
			}
			if ResetWarranted(neutralSimilarity, contaminationScore) {
				reset = true
				c.metrics.ObserveReset("contamination")
				log.Info("context reset on contamination", "score", contaminationScore)
			}
		}
	}

	status := "ok"
	if raw == "" {
		status = "generation_failed"
		final = apologyFallback
	}

	c.persist(ctx, threadID, turnID, userMessage, raw, final, reset, log)
	c.recordStats(ctx, stats.TurnEvent{
		ThreadID:      threadID,
		TurnID:        turnID,
		Reset:         reset,
		Confidence:    confidence,
		Contamination: contaminationScore,
		CreatedAt:     time.Now().UTC(),
	}, log)

	c.metrics.ObserveTurn(status)
	span.SetAttributes(
		attribute.Bool("aide.reset", reset),
		attribute.Int("aide.confidence", confidence),
		attribute.Int("aide.contamination", contaminationScore),
	)

	return &TurnResult{
		ThreadID:      threadID,
		TurnID:        turnID,
		Response:      final,
		Reset:         reset,
		Confidence:    confidence,
		Contamination: contaminationScore,
	}, nil
}

// OnThreadDeleted cascades deletion across every per-thread store. Store
// failures are collected; the stats cascade is best-effort and only logged.
func (c *SessionController) OnThreadDeleted(ctx context.Context, threadID string) error {
	ctx, span := controllerTracer.Start(ctx, "controller.thread_deleted")
	defer span.End()
	span.SetAttributes(attribute.String("aide.thread_id", threadID))

	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return ErrMissingThreadID
	}

	var errs []error
	if err := c.history.Clear(ctx, threadID); err != nil {
		errs = append(errs, err)
	}
	if err := c.summaries.Delete(ctx, threadID); err != nil {
		errs = append(errs, err)
	}
	if err := c.index.Purge(ctx, threadID); err != nil {
		errs = append(errs, err)
	}
	if c.stats != nil {
		if err := c.stats.DeleteThread(ctx, threadID); err != nil {
			c.logger.Warn("stats cascade failed on thread delete",
				"thread_id", threadID, "error", err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info("thread deleted", "thread_id", threadID)
	return nil
}

// generate runs the answer-generation call. A provider failure or blank
// output yields the empty string; there is no retry.
func (c *SessionController) generate(ctx context.Context, payload *ContextPayload, log *logging.Logger) string {
	req := c.assembler.BuildPrompt(payload)
	req.Model = c.model
	req.MaxTokens = int32(c.maxTokens)
	req.Temperature = c.temperature

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		log.Error("generation failed", "error", err)
		return ""
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Warn("generation returned empty output")
	}
	return text
}

// persist writes the turn's outcome. The summary folds the raw generated
// text so it tracks what the model actually said; history and the similarity
// index store the final response the user received. On reset the summary is
// regenerated first and then cleared, so a later turn that un-resets starts
// from a blank summary rather than a stale one.
func (c *SessionController) persist(ctx context.Context, threadID, turnID, userMessage, raw, final string, reset bool, log *logging.Logger) {
	if raw != "" {
		if err := c.summaries.Regenerate(ctx, threadID, userMessage, raw); err != nil {
			log.Warn("summary regeneration failed", "error", err)
		}
	}
	if err := c.history.Append(ctx, threadID, userMessage, final); err != nil {
		log.Warn("history append failed", "error", err)
	}
	if err := c.index.Index(ctx, threadID, turnID, userMessage, final); err != nil {
		log.Warn("similarity indexing failed", "error", err)
	}
	if reset {
		if err := c.summaries.Clear(ctx, threadID); err != nil {
			log.Warn("summary clear failed after reset", "error", err)
		}
	}
}

func (c *SessionController) recordStats(ctx context.Context, event stats.TurnEvent, log *logging.Logger) {
	if c.stats == nil {
		return
	}
	if err := c.stats.RecordTurn(ctx, event); err != nil {
		log.Warn("turn stats recording failed", "error", err)
	}
}
