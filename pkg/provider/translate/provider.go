// Package translate defines the Provider interface for the speech-to-speech
// translation chain.
//
// A translate provider wraps the full ASR → MT → TTS path behind one blocking
// call: it receives a complete utterance as pipeline-format PCM, recognises
// it in the source language, translates the text, synthesises speech in the
// target language, and returns the synthesised samples in pipeline format.
// Model loading, prompt construction, and codec handling all live behind this
// interface — the routing core never sees them.
//
// Implementations must be safe for concurrent use: both pipeline directions
// may dispatch utterances at the same time.
package translate

import (
	"context"
	"errors"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// ErrInference is the sentinel wrapped by providers when the chain fails for
// a reason local to one utterance (recognition error, upstream 5xx, malformed
// model output). Callers drop the utterance, count it, and keep going.
var ErrInference = errors.New("translate: inference failed")

// Request is one utterance to translate.
type Request struct {
	// Samples is the utterance PCM at [audio.SampleRate], mono 16-bit.
	Samples []int16

	// SourceLang and TargetLang are language tags (e.g., "en", "de", "zh").
	SourceLang string
	TargetLang string
}

// Duration reports the utterance length implied by the sample count.
func (r Request) Duration() float64 {
	return float64(len(r.Samples)) / float64(audio.SampleRate)
}

// Result is the outcome of translating one utterance.
type Result struct {
	// Samples is the synthesised target-language speech in pipeline format.
	// Empty is valid: recognition yielded no text.
	Samples []int16

	// SourceText is the recognised source-language text, when the backend
	// reports it. Informational only.
	SourceText string

	// TranslatedText is the target-language text that was synthesised, when
	// the backend reports it. Informational only.
	TranslatedText string
}

// Provider is the abstraction over any speech-to-speech translation backend.
//
// Translate blocks until the chain completes or ctx expires; the caller
// bounds every call with a per-utterance timeout. A ctx error must be
// returned as-is (wrapped) so callers can distinguish timeout from
// [ErrInference].
type Provider interface {
	Translate(ctx context.Context, req Request) (*Result, error)
}
