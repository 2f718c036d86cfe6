// Package mock provides a recording test double for the translate provider.
//
// The zero value returns an empty Result for every call. Set Result or Err
// for fixed behaviour, or TranslateFunc for full control (e.g., blocking on a
// channel to simulate a hung inference backend).
package mock

import (
	"context"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/translate"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	// Req is the request, with Samples copied so later mutation by the
	// caller cannot corrupt the record.
	Req translate.Request
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Translate when TranslateFunc is nil and Err is
	// nil. A nil Result yields an empty (non-nil) result.
	Result *translate.Result

	// Err, if non-nil, is returned by every Translate call.
	Err error

	// TranslateFunc, if non-nil, handles the call entirely. Call recording
	// still happens first.
	TranslateFunc func(ctx context.Context, req translate.Request) (*translate.Result, error)

	// TranslateCalls records every call in order.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns the scripted behaviour.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	rec := req
	rec.Samples = append([]int16(nil), req.Samples...)
	p.mu.Lock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Req: rec})
	fn := p.TranslateFunc
	res := p.Result
	err := p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &translate.Result{}, nil
	}
	cp := *res
	cp.Samples = append([]int16(nil), res.Samples...)
	return &cp, nil
}

// Calls returns a copy of all recorded calls. Thread-safe.
func (p *Provider) Calls() []TranslateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranslateCall, len(p.TranslateCalls))
	copy(out, p.TranslateCalls)
	return out
}

// ResetCalls clears the recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)
