package logger

import "testing"

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Fatalf("expected default level info, got %s", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Fatalf("expected default format console, got %s", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Fatal("expected timestamps on by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid json", Config{Level: "debug", Format: "json", Output: "stdout"}, false},
		{"valid console", Config{Level: "info", Format: "console", Output: "stderr"}, false},
		{"bad level", Config{Level: "verbose", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "logfmt"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFields(t *testing.T) {
	m := Fields("stage", "merge", "rows", 42)
	if m["stage"] != "merge" || m["rows"] != 42 {
		t.Fatalf("unexpected fields: %v", m)
	}
	// Odd trailing value is dropped, not an error.
	if got := Fields("only"); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestWithComponent(t *testing.T) {
	l := NewDefault("test").WithComponent("orchestrator")
	if l == nil {
		t.Fatal("expected logger")
	}
	l.Debug("component logger works")
}
