// Package relay provides a translate provider that forwards utterances to a
// local inference sidecar over WebSocket.
//
// The sidecar hosts the actual ASR, MT, and TTS models (whisper.cpp, a local
// NMT model, a local vocoder — whatever the deployment ships) and exposes one
// endpoint. The protocol is a single exchange per utterance:
//
//	→ text frame:   {"source_lang":"en","target_lang":"de","sample_rate":16000}
//	→ binary frame: utterance PCM, little-endian 16-bit mono
//	← text frame:   {"source_text":"...","translated_text":"...","error":""}
//	← binary frame: synthesised PCM at sample_rate (omitted when empty)
//
// Each Translate call dials its own connection. At one connection per
// completed utterance the handshake cost is negligible next to inference
// time, and it keeps utterances fully isolated — a failed exchange can never
// poison the next one.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
)

// header is the request metadata frame.
type header struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	SampleRate int    `json:"sample_rate"`
}

// reply is the response metadata frame.
type reply struct {
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
	Error          string `json:"error,omitempty"`
}

// Provider implements translate.Provider against a relay sidecar.
type Provider struct {
	url string
}

// New constructs a relay Provider targeting url (e.g.,
// "ws://localhost:9871/translate").
func New(url string) (*Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("relay: url must not be empty")
	}
	return &Provider{url: url}, nil
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)

// Translate performs one request/response exchange with the sidecar.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	conn, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("relay: dial: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: dial %s: %v", translate.ErrInference, p.url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Sidecar replies are bounded by the utterance length, but leave
	// generous headroom for long synthesised output.
	conn.SetReadLimit(32 << 20)

	hdr, err := json.Marshal(header{
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		SampleRate: audio.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: marshal header: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, hdr); err != nil {
		return nil, p.exchangeErr(ctx, "write header", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, audio.PCMFromSamples(req.Samples)); err != nil {
		return nil, p.exchangeErr(ctx, "write audio", err)
	}

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return nil, p.exchangeErr(ctx, "read reply", err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: sidecar sent %v frame, want text reply", translate.ErrInference, typ)
	}
	var rep reply
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", translate.ErrInference, err)
	}
	if rep.Error != "" {
		return nil, fmt.Errorf("%w: sidecar: %s", translate.ErrInference, rep.Error)
	}

	res := &translate.Result{
		SourceText:     rep.SourceText,
		TranslatedText: rep.TranslatedText,
	}
	if rep.TranslatedText == "" {
		// Nothing was synthesised; no audio frame follows.
		return res, nil
	}

	typ, data, err = conn.Read(ctx)
	if err != nil {
		return nil, p.exchangeErr(ctx, "read audio", err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("%w: sidecar sent %v frame, want binary audio", translate.ErrInference, typ)
	}
	res.Samples = audio.SamplesFromPCM(data)
	return res, nil
}

// exchangeErr maps a transport error to the caller-facing taxonomy: context
// expiry surfaces as the context's error, anything else as ErrInference.
func (p *Provider) exchangeErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("relay: %s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%w: %s: %v", translate.ErrInference, op, err)
}
