package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestCheckConfig_PrintsEffectiveConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Structure.Type = "person"
	cfg.Structure.KeyExpression = "address.city"
	cfg.Security.PasswordHash = "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"

	var out bytes.Buffer
	if err := checkConfig(&out, cfg); err != nil {
		t.Fatalf("checkConfig() error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"# stages: mapper, structure, key, headers",
		"uri_path: /",
		"type: stdout",
		"<redacted>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "argon2id") {
		t.Error("password hash leaked into check output")
	}
	if cfg.Security.PasswordHash == "<redacted>" {
		t.Error("checkConfig() modified the caller's config")
	}
}

func TestCheckConfig_InvalidStage(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Structure.Type = "spaceship"

	var out bytes.Buffer
	err := checkConfig(&out, cfg)
	if err == nil {
		t.Fatal("checkConfig() error = nil, want unknown structure type")
	}
	if out.Len() != 0 {
		t.Errorf("checkConfig() wrote output on failure: %q", out.String())
	}
}
