package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/pkg/logging"
)

func verifierPayload() *ContextPayload {
	return &ContextPayload{
		ThreadID:  "t1",
		Question:  "서울 기온이 어떻게 돼?",
		Timestamp: time.Date(2025, 3, 2, 5, 30, 0, 0, time.UTC),
		Blocks: []ContextBlock{
			{Source: SourceWeather, Text: "현재 Seoul 날씨: 맑음, 기온 5.0°C", Present: true},
		},
	}
}

func TestVerifyReliableResponsePassesThrough(t *testing.T) {
	model := textClient(`{"isReliable": true, "confidenceScore": 92, "hallucinations": [], "recommendation": "fine", "improvedResponse": ""}`)
	verifier := NewResponseVerifier(model, nil, logging.Default())

	got := verifier.Verify(context.Background(), verifierPayload(), "현재 서울 기온은 5도입니다.")
	if !got.IsReliable || got.ConfidenceScore != 92 {
		t.Fatalf("assessment = %+v", got)
	}
	if got.VerifiedResponse != "현재 서울 기온은 5도입니다." {
		t.Fatalf("reliable response was rewritten: %q", got.VerifiedResponse)
	}
}

func TestVerifySubstitutesImprovedResponse(t *testing.T) {
	model := textClient(`{"isReliable": false, "confidenceScore": 35, "hallucinations": ["invented humidity figure"], "recommendation": "drop unsupported detail", "improvedResponse": "  현재 서울 기온은 5도입니다.  "}`)
	verifier := NewResponseVerifier(model, nil, logging.Default())

	got := verifier.Verify(context.Background(), verifierPayload(), "기온 5도, 습도 80%입니다.")
	if got.IsReliable {
		t.Fatal("expected unreliable assessment")
	}
	if got.VerifiedResponse != "현재 서울 기온은 5도입니다." {
		t.Fatalf("VerifiedResponse = %q, want trimmed improved text", got.VerifiedResponse)
	}
	if len(got.Hallucinations) != 1 {
		t.Fatalf("hallucinations = %v", got.Hallucinations)
	}
}

func TestVerifyUnreliableWithoutImprovementKeepsOriginal(t *testing.T) {
	model := textClient(`{"isReliable": false, "confidenceScore": 20, "improvedResponse": "   "}`)
	verifier := NewResponseVerifier(model, nil, logging.Default())

	got := verifier.Verify(context.Background(), verifierPayload(), "original answer")
	if got.VerifiedResponse != "original answer" {
		t.Fatalf("VerifiedResponse = %q, want original kept", got.VerifiedResponse)
	}
}

func TestVerifyDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeClient
	}{
		{
			name: "model error",
			model: &fakeClient{fn: func(llm.Request) (llm.Response, error) {
				return llm.Response{}, errors.New("provider down")
			}},
		},
		{
			name:  "no JSON block",
			model: textClient("looks fine to me"),
		},
		{
			name:  "malformed JSON",
			model: textClient(`{"isReliable": "maybe"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := NewResponseVerifier(tt.model, nil, logging.Default())
			got := verifier.Verify(context.Background(), verifierPayload(), "the answer")
			if got.IsReliable || got.ConfidenceScore != 0 {
				t.Fatalf("degraded assessment = %+v", got)
			}
			if got.VerifiedResponse != "the answer" {
				t.Fatalf("original response lost on degradation: %q", got.VerifiedResponse)
			}
		})
	}
}

func TestRenderContextBlocksSkipsAbsent(t *testing.T) {
	payload := &ContextPayload{
		Blocks: []ContextBlock{
			{Source: SourceSummary, Text: "summary text", Present: true},
			{Source: SourceSearch, Text: "", Present: false},
		},
	}
	rendered := renderContextBlocks(payload)
	if rendered != "[summary]\nsummary text" {
		t.Fatalf("rendered = %q", rendered)
	}

	empty := renderContextBlocks(&ContextPayload{})
	if empty != "(no context was supplied this turn)" {
		t.Fatalf("empty render = %q", empty)
	}
}
