package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	translatemock "github.com/voxbridge/voxbridge/pkg/provider/translate/mock"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
	"github.com/voxbridge/voxbridge/pkg/provider/vad/energy"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error("verbose should not be valid")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel(""), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.Slog(); got != tt.want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestOverflowPolicy_Audio(t *testing.T) {
	t.Parallel()
	if got := config.OverflowDropOldest.Audio(); got != audio.DropOldest {
		t.Errorf("drop_oldest maps to %v, want DropOldest", got)
	}
	if got := config.OverflowRejectNew.Audio(); got != audio.RejectNew {
		t.Errorf("reject_new maps to %v, want RejectNew", got)
	}
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()
	var v struct {
		D config.Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte("d: 1.5s"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := v.D.Std(); got != 1500*time.Millisecond {
		t.Errorf("parsed %v, want 1.5s", got)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "1.5s") {
		t.Errorf("marshalled %q, want it to contain 1.5s", out)
	}

	if err := yaml.Unmarshal([]byte("d: soon"), &v); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestRegistry_CreateTranslate(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterTranslate("mock", func(config.ProviderEntry) (translate.Provider, error) {
		return &translatemock.Provider{}, nil
	})

	p, err := reg.CreateTranslate(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateTranslate: %v", err)
	}
	if p == nil {
		t.Fatal("CreateTranslate returned nil provider")
	}

	_, err = reg.CreateTranslate(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateVAD(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	eng, err := reg.CreateVAD(config.VADConfig{Engine: "energy"})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if eng == nil {
		t.Fatal("CreateVAD returned nil engine")
	}

	_, err = reg.CreateVAD(config.VADConfig{Engine: "silero"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &translatemock.Provider{}
	second := &translatemock.Provider{}
	reg.RegisterTranslate("mock", func(config.ProviderEntry) (translate.Provider, error) {
		return first, nil
	})
	reg.RegisterTranslate("mock", func(config.ProviderEntry) (translate.Provider, error) {
		return second, nil
	})

	p, err := reg.CreateTranslate(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateTranslate: %v", err)
	}
	if p != second {
		t.Error("later registration should win")
	}
}
