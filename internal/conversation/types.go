// Package conversation implements the per-thread context management and
// response-integrity pipeline: deciding which prior information is injected
// into a new query, and validating the generated answer for grounding and
// topical carry-over before it is persisted and returned.
package conversation

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnPair is one user message or assistant reply. The stored history is a
// flat sequence of these in strict (user, assistant) alternation.
type TurnPair struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SimilarMatch is one past exchange returned by the similarity index,
// most similar first.
type SimilarMatch struct {
	UserText string
	BotText  string
	Distance float64
}

// TopicAssessment is the topic-shift judgment for a new question against the
// previous exchange. Derived per turn, never stored.
type TopicAssessment struct {
	IsNewTopic         bool   `json:"isNewTopic"`
	Similarity         int    `json:"similarity"`
	Analysis           string `json:"analysis"`
	ShouldResetContext bool   `json:"shouldResetContext"`
}

// VerificationAssessment is the grounding judgment for a generated response
// against the assembled context.
type VerificationAssessment struct {
	IsReliable       bool     `json:"isReliable"`
	ConfidenceScore  int      `json:"confidenceScore"`
	Hallucinations   []string `json:"hallucinations"`
	Recommendation   string   `json:"recommendation"`
	VerifiedResponse string   `json:"-"`
}

// ContaminationAssessment is the carry-over judgment for a candidate response
// against the immediately prior exchange.
type ContaminationAssessment struct {
	IsContaminated       bool     `json:"isContaminated"`
	ContaminationScore   int      `json:"contaminationScore"`
	ContaminatedSegments []string `json:"contaminatedSegments"`
	Explanation          string   `json:"explanation"`
	CleanedResponse      string   `json:"cleanedResponse"`
}

// ContextSource identifies one contributor to the assembled payload.
type ContextSource string

const (
	SourceSummary  ContextSource = "summary"
	SourceSimilar  ContextSource = "similar"
	SourceDateTime ContextSource = "datetime"
	SourceWeather  ContextSource = "weather"
	SourceSearch   ContextSource = "search"
)

// ContextBlock is one named block of supporting text in the payload.
type ContextBlock struct {
	Source  ContextSource
	Text    string
	Present bool
}

// ContextPayload is the bounded prompt context for one turn, plus the trace
// of which sources contributed.
type ContextPayload struct {
	ThreadID  string
	Question  string
	Reset     bool
	Timestamp time.Time
	Blocks    []ContextBlock
}

// Block returns the block for a source, or an absent block when the source
// contributed nothing this turn.
func (p *ContextPayload) Block(source ContextSource) ContextBlock {
	for _, b := range p.Blocks {
		if b.Source == source {
			return b
		}
	}
	return ContextBlock{Source: source}
}

// Present reports whether a source contributed to this payload.
func (p *ContextPayload) Present(source ContextSource) bool {
	return p.Block(source).Present
}

// TurnResult is what HandleTurn reports back to the transport layer.
type TurnResult struct {
	ThreadID      string
	TurnID        string
	Response      string
	Reset         bool
	Confidence    int
	Contamination int
}
