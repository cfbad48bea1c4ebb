// Package ai generates thread drafts and brand-voice analyses through a
// Gemini-compatible generateContent HTTP API. The model is asked for JSON
// constrained by a response schema, so parsing failures are API bugs rather
// than prompt lottery.
package ai

import (
	"context"
	"errors"

	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// ErrBadResponse marks model output that could not be decoded into the
// requested shape.
var ErrBadResponse = errors.New("ai: response is not valid JSON for the requested schema")

// Generator produces content drafts. The HTTP transport depends on this
// interface so tests can substitute a canned implementation.
type Generator interface {
	// GenerateThread turns a one-line idea into a multi-post thread draft.
	// A non-nil voice steers tone and style.
	GenerateThread(ctx context.Context, idea string, voice *types.VoiceProfile) (types.Thread, error)

	// AnalyzeVoice distills writing samples into a reusable voice profile.
	AnalyzeVoice(ctx context.Context, samples []string) (types.VoiceProfile, error)
}
