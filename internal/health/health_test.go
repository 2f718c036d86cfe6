package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func passProbe(name string) Checker {
	return Checker{Name: name, Check: func(_ context.Context) error { return nil }}
}

func failProbe(name, reason string) Checker {
	return Checker{Name: name, Check: func(_ context.Context) error { return errors.New(reason) }}
}

func getReadyz(t *testing.T, h *Handler) (int, report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(failProbe("microphone", "device unplugged"))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllProbesPass(t *testing.T) {
	h := New(passProbe("microphone"), passProbe("outbound"))

	code, body := getReadyz(t, h)
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	for _, name := range []string{"microphone", "outbound"} {
		if got := body.Probes[name]; got.Status != "ok" || got.Reason != "" {
			t.Errorf("probe %s = %+v, want ok with no reason", name, got)
		}
	}
}

func TestReadyz_ProbeFailure(t *testing.T) {
	h := New(
		failProbe("microphone", "device unplugged"),
		passProbe("outbound"),
	)

	code, body := getReadyz(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	if got := body.Probes["microphone"]; got.Status != "fail" || got.Reason != "device unplugged" {
		t.Errorf("microphone probe = %+v", got)
	}
	// The healthy probe still reports ok so the report shows exactly which
	// subsystem broke.
	if got := body.Probes["outbound"]; got.Status != "ok" {
		t.Errorf("outbound probe = %+v, want ok", got)
	}
}

func TestReadyz_AllProbesFail(t *testing.T) {
	h := New(
		failProbe("speaker", "device unplugged"),
		failProbe("inbound", "channel is degraded"),
	)

	code, body := getReadyz(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if got := body.Probes["speaker"].Reason; got != "device unplugged" {
		t.Errorf("speaker reason = %q", got)
	}
	if got := body.Probes["inbound"].Reason; got != "channel is degraded" {
		t.Errorf("inbound reason = %q", got)
	}
}

func TestReadyz_NoProbes(t *testing.T) {
	code, body := getReadyz(t, New())
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New(passProbe("test")).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
