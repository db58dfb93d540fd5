package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "VOICE_WAKE_WORDS", "VOICE_CLOSE_WORDS", "VOICE_MAX_RESTARTS", "STT_BACKEND", "CONFIG_FILE"} {
		os.Unsetenv(k)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if !reflect.DeepEqual(c.Voice.WakeWords, []string{"wake up"}) || !reflect.DeepEqual(c.Voice.CloseWords, []string{"close chat"}) {
		t.Fatalf("unexpected default phrases %v / %v", c.Voice.WakeWords, c.Voice.CloseWords)
	}
	if c.STT.Backend != "browser" {
		t.Fatalf("expected browser backend, got %q", c.STT.Backend)
	}
	vc := c.VoiceConfig()
	if vc.SilenceTimeout != time.Minute || vc.MaxRestarts != 3 || vc.RestartDelay != 500*time.Millisecond || vc.ResumeDelay != 2500*time.Millisecond {
		t.Fatalf("unexpected voice config %+v", vc)
	}
}

func TestLoadPhrasesFromEnv(t *testing.T) {
	t.Setenv("VOICE_WAKE_WORDS", "hello system, hey assistant ,")
	t.Setenv("VOICE_MAX_RESTARTS", "5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(c.Voice.WakeWords, []string{"hello system", "hey assistant"}) {
		t.Fatalf("unexpected wake words %q", c.Voice.WakeWords)
	}
	if c.Voice.MaxRestarts != 5 {
		t.Fatalf("expected 5 restarts, got %d", c.Voice.MaxRestarts)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	body := "voice:\n  close_words: [\"goodbye system\", \"bye\"]\nllm:\n  endpoint: http://llm.local/api/invoke-llm\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(c.Voice.CloseWords, []string{"goodbye system", "bye"}) {
		t.Fatalf("unexpected close words %q", c.Voice.CloseWords)
	}
	if c.LLM.Endpoint != "http://llm.local/api/invoke-llm" {
		t.Fatalf("unexpected endpoint %q", c.LLM.Endpoint)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STT_BACKEND", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
