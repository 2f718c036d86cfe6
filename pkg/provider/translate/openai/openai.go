// Package openai provides a translate provider backed by the OpenAI API.
//
// One Translate call runs the full chain against hosted models: the
// utterance is transcribed by a Whisper model, the transcript is translated
// by a chat model, and the translation is synthesised by a TTS model
// requesting raw PCM output. Synthesis arrives at the API's native 24 kHz
// and is resampled to the pipeline rate on the way out.
//
// This provider trades latency for zero local model management. For the
// sub-second budget a local inference sidecar (see the relay provider) is
// the better fit; the OpenAI chain is useful for development and as a
// fallback.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
)

// speechSampleRate is the sample rate of the API's raw PCM speech output.
const speechSampleRate = 24000

// translationSystemPrompt instructs the chat model to act as a pure
// translator. The target language is appended at request time.
const translationSystemPrompt = "You are a simultaneous interpreter. Translate the user's text into %s. Reply with the translation only — no quotes, no commentary."

// Provider implements translate.Provider using the OpenAI API.
type Provider struct {
	client oai.Client

	transcribeModel string
	chatModel       string
	speechModel     string
	voice           oai.AudioSpeechNewParamsVoice
}

// config holds optional construction settings.
type config struct {
	baseURL         string
	transcribeModel string
	chatModel       string
	speechModel     string
	voice           string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, for API-compatible
// local servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTranscribeModel overrides the recognition model. Default "whisper-1".
func WithTranscribeModel(model string) Option {
	return func(c *config) { c.transcribeModel = model }
}

// WithChatModel overrides the translation model. Default "gpt-4o-mini".
func WithChatModel(model string) Option {
	return func(c *config) { c.chatModel = model }
}

// WithSpeechModel overrides the synthesis model. Default "tts-1".
func WithSpeechModel(model string) Option {
	return func(c *config) { c.speechModel = model }
}

// WithVoice overrides the synthesis voice. Default "alloy".
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// New constructs an OpenAI translate Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		transcribeModel: "whisper-1",
		chatModel:       "gpt-4o-mini",
		speechModel:     "tts-1",
		voice:           "alloy",
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:          oai.NewClient(reqOpts...),
		transcribeModel: cfg.transcribeModel,
		chatModel:       cfg.chatModel,
		speechModel:     cfg.speechModel,
		voice:           oai.AudioSpeechNewParamsVoice(cfg.voice),
	}, nil
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)

// Translate runs transcription, translation, and synthesis in sequence.
// An utterance that recognises to empty text short-circuits with an empty
// result — no chat or TTS call is made.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	if len(req.Samples) == 0 {
		return &translate.Result{}, nil
	}

	sourceText, err := p.transcribe(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceText) == "" {
		return &translate.Result{}, nil
	}

	translated, err := p.translateText(ctx, sourceText, req.TargetLang)
	if err != nil {
		return nil, err
	}

	samples, err := p.synthesize(ctx, translated)
	if err != nil {
		return nil, err
	}

	return &translate.Result{
		Samples:        samples,
		SourceText:     sourceText,
		TranslatedText: translated,
	}, nil
}

func (p *Provider) transcribe(ctx context.Context, req translate.Request) (string, error) {
	wav := encodeWAV(req.Samples, audio.SampleRate)

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.transcribeModel),
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
	}
	if req.SourceLang != "" {
		params.Language = oai.String(req.SourceLang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("openai: transcription: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: transcription: %v", translate.ErrInference, err)
	}
	return resp.Text, nil
}

func (p *Provider) translateText(ctx context.Context, text, targetLang string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.chatModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(fmt.Sprintf(translationSystemPrompt, languageName(targetLang))),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("openai: translation: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: translation: %v", translate.ErrInference, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: translation returned no choices", translate.ErrInference)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *Provider) synthesize(ctx context.Context, text string) ([]int16, error) {
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.speechModel),
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: synthesis: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: synthesis: %v", translate.ErrInference, err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read synthesis response: %v", translate.ErrInference, err)
	}

	samples := audio.SamplesFromPCM(pcm)
	return audio.ResampleMono16(samples, speechSampleRate, audio.SampleRate), nil
}

// languageName expands common language tags to names the chat model follows
// more reliably than bare tags. Unknown tags pass through unchanged.
func languageName(tag string) string {
	switch strings.ToLower(tag) {
	case "en":
		return "English"
	case "de":
		return "German"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "it":
		return "Italian"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "zh":
		return "Chinese"
	case "pt":
		return "Portuguese"
	case "ru":
		return "Russian"
	default:
		return tag
	}
}

// encodeWAV wraps mono 16-bit samples in a minimal RIFF/WAVE header.
func encodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}
