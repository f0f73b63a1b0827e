package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "AI_PROVIDER", "STORAGE_BACKEND", "STORAGE_PATH", "AUTOSAVE_INTERVAL", "TYPING_SPEED", "IMAGE_ESTIMATED_DURATION"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderArk {
		t.Fatalf("unexpected provider %q", cfg.AI.Provider)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "data/studio.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Studio.AutosaveInterval != 2*time.Minute {
		t.Fatalf("unexpected autosave interval %s", cfg.Studio.AutosaveInterval)
	}
	if cfg.Studio.ImageEstimatedDuration != 15*time.Second {
		t.Fatalf("unexpected image estimate %s", cfg.Studio.ImageEstimatedDuration)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("STORAGE_PATH", "")
	t.Setenv("AUTOSAVE_INTERVAL", "30s")
	t.Setenv("TYPING_SPEED", "")
	t.Setenv("IMAGE_ESTIMATED_DURATION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("unexpected provider %q", cfg.AI.Provider)
	}
	if cfg.Storage.Path != "data" {
		t.Fatalf("unexpected storage path %q", cfg.Storage.Path)
	}
	if cfg.Studio.AutosaveInterval != 30*time.Second {
		t.Fatalf("unexpected autosave interval %s", cfg.Studio.AutosaveInterval)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":              "80 80",
		"AI_PROVIDER":       "gemini",
		"STORAGE_BACKEND":   "redis",
		"AUTOSAVE_INTERVAL": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	if (AIConfig{Model: "m"}).Enabled() {
		t.Fatal("model without credentials must be disabled")
	}
	if !(AIConfig{Model: "m", APIKey: "k"}).Enabled() {
		t.Fatal("api key + model should be enabled")
	}
	if !(AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}).Enabled() {
		t.Fatal("ak/sk + model should be enabled")
	}
}
