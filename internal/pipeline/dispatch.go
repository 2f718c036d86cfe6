package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
)

// utterance is the accumulator for one speech segment. It is built by the
// accumulate loop and handed to the dispatch worker by pointer; ownership
// moves with it.
type utterance struct {
	samples []int16
	base    time.Duration // timestamp of the first frame
}

// append adds one frame's samples.
func (u *utterance) append(f audio.Frame) {
	if len(u.samples) == 0 {
		u.base = f.Timestamp
	}
	u.samples = append(u.samples, f.Samples[:]...)
}

// trim removes n frames of hangover silence from the tail, so the utterance
// ends on its last speech frame.
func (u *utterance) trim(n int) {
	cut := n * audio.SamplesPerFrame
	if cut >= len(u.samples) {
		u.samples = u.samples[:0]
		return
	}
	u.samples = u.samples[:len(u.samples)-cut]
}

// duration reports the audio length accumulated so far.
func (u *utterance) duration() time.Duration {
	return time.Duration(len(u.samples)/audio.SamplesPerFrame) * audio.FrameDuration
}

// dispatchLoop serialises inference: one utterance at a time, in arrival
// order, so output frames of different utterances never interleave. It
// drains the pending channel until the accumulate loop closes it or ctx is
// cancelled.
func (c *Channel) dispatchLoop(ctx context.Context) {
	for u := range c.pending {
		if ctx.Err() != nil {
			c.recordUtterance(context.Background(), "discarded")
			continue
		}
		c.inflight.Store(true)
		c.dispatch(ctx, u)
		c.inflight.Store(false)
	}
}

// dispatch runs one utterance through the translate chain and writes the
// synthesised frames to the current output endpoint.
func (c *Channel) dispatch(ctx context.Context, u *utterance) {
	// The language pair is observed here, at dispatch time: a concurrent
	// swap affects the next utterance, never this one.
	src, tgt := c.cfg.Languages()

	cctx, cancel := context.WithTimeout(ctx, c.cfg.InferenceTimeout)
	start := time.Now()
	res, err := c.cfg.Translator.Translate(cctx, translate.Request{
		Samples:    u.samples,
		SourceLang: src,
		TargetLang: tgt,
	})
	cancel()
	elapsed := time.Since(start)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.InferenceDuration.Record(ctx, elapsed.Seconds(), c.recordAttrs())
		c.cfg.Metrics.UtteranceDuration.Record(ctx, u.duration().Seconds(), c.recordAttrs())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.log.Warn("inference timed out, utterance dropped",
			"utterance", u.duration(), "timeout", c.cfg.InferenceTimeout)
		c.recordUtterance(ctx, "timeout")
		return
	case err != nil:
		c.log.Warn("inference failed, utterance dropped",
			"utterance", u.duration(), "error", err)
		c.recordUtterance(ctx, "inference_error")
		return
	}

	if len(res.Samples) == 0 {
		// Recognition yielded no text; valid and common for noise.
		c.recordUtterance(ctx, "empty")
		return
	}

	c.log.Debug("utterance translated",
		"utterance", u.duration(),
		"inference", elapsed,
		"source_text", res.SourceText,
		"translated_text", res.TranslatedText)

	// Resolve the output endpoint now, from the current snapshot: routing
	// may have changed while inference ran.
	_, out, ok := c.cfg.Router.Wiring(c.cfg.Name)
	if !ok || out.State() != audio.StateActive {
		c.log.Warn("output unavailable, synthesised audio discarded")
		c.recordUtterance(ctx, "discarded")
		return
	}

	c.writeFrames(ctx, out, audio.FramesFromSamples(res.Samples, u.base))
	c.recordUtterance(ctx, "ok")
}

// writeFrames pushes synthesised frames to the output in strict order. A
// full reject-new buffer is backpressure: wait one frame period and retry.
// Any other write failure discards the remainder of the utterance.
func (c *Channel) writeFrames(ctx context.Context, out audio.PlaybackEndpoint, frames []audio.Frame) {
	for i, f := range frames {
		for {
			err := out.Write(f)
			if err == nil {
				break
			}
			if errors.Is(err, audio.ErrBufferFull) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(audio.FrameDuration):
				}
				continue
			}
			c.log.Warn("output write failed, remainder of utterance discarded",
				"written", i, "total", len(frames), "error", err)
			return
		}
	}
}

func (c *Channel) channelAttrs() metric.AddOption {
	return metric.WithAttributes(attribute.String("channel", c.cfg.Name))
}

func (c *Channel) recordAttrs() metric.RecordOption {
	return metric.WithAttributes(attribute.String("channel", c.cfg.Name))
}
