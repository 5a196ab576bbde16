package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" || cfg.Format != FormatConsole || cfg.Output != "stdout" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{Level: "debug", Format: "json"}, false},
		{Config{Level: "info", Format: "console"}, false},
		{Config{Level: "loud", Format: "json"}, true},
		{Config{Level: "info", Format: "xml"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.cfg.Level+"/"+tc.cfg.Format, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestJSONComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(Config{Level: "debug", Format: FormatJSON}, &buf), "api")

	log.Info().Str(FieldRequestID, "abc").Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != "api" {
		t.Errorf("Expected component api, got %v", rec[FieldComponent])
	}
	if rec[FieldRequestID] != "abc" {
		t.Errorf("Expected request id abc, got %v", rec[FieldRequestID])
	}
	if rec["message"] != "hello" {
		t.Errorf("Expected message hello, got %v", rec["message"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn", Format: FormatJSON}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("Expected info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("Expected warn to be written, got %q", out)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "info", Format: FormatConsole, NoColor: true}, &buf)

	log.Info().Msg("ready")

	if !strings.Contains(buf.String(), "ready") {
		t.Errorf("Expected console output to contain message, got %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("Expected human-readable output, got %q", buf.String())
	}
}
