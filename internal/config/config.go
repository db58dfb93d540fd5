package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"videochat/agent/internal/voice"
)

type Config struct {
	Server struct {
		Port        string
		LogLevel    string
		MetricsAddr string
		GRPCAddr    string
	}
	Auth struct {
		TokenSecret   string
		TokenTTLMin   int
		TokenSkewSecs int
	}
	Voice struct {
		WakeWords        []string
		CloseWords       []string
		SilenceTimeoutMs int
		MaxRestarts      int
		RestartDelayMs   int
		ResumeDelayMs    int
	}
	STT struct {
		// Backend is "browser" (page-side Web Speech) or "deepgram".
		Backend string
	}
	Deepgram struct {
		APIKey   string
		Model    string
		Language string
		WSURL    string
	}
	LLM struct {
		Endpoint  string
		TimeoutMs int
	}
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that file. Environment variables win.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("auth.token_ttl_min", 720)
	v.SetDefault("auth.token_skew_secs", 60)

	v.SetDefault("voice.wake_words", []string{"wake up"})
	v.SetDefault("voice.close_words", []string{"close chat"})
	v.SetDefault("voice.silence_timeout_ms", 60000)
	v.SetDefault("voice.max_restarts", voice.DefaultMaxRestarts)
	v.SetDefault("voice.restart_delay_ms", 500)
	v.SetDefault("voice.resume_delay_ms", 2500)

	v.SetDefault("stt.backend", "browser")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en-US")
	v.SetDefault("deepgram.ws_url", "wss://api.deepgram.com/v1/listen")

	v.SetDefault("llm.endpoint", "http://localhost:5000/api/invoke-llm")
	v.SetDefault("llm.timeout_ms", 30000)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.metrics_addr", "METRICS_ADDR")
	v.BindEnv("server.grpc_addr", "GRPC_ADDR")

	v.BindEnv("auth.token_secret", "CLIENT_TOKEN_SECRET")
	v.BindEnv("auth.token_ttl_min", "CLIENT_TOKEN_TTL_MIN")
	v.BindEnv("auth.token_skew_secs", "CLIENT_TOKEN_SKEW_SECS")

	v.BindEnv("voice.wake_words", "VOICE_WAKE_WORDS")
	v.BindEnv("voice.close_words", "VOICE_CLOSE_WORDS")
	v.BindEnv("voice.silence_timeout_ms", "VOICE_SILENCE_TIMEOUT_MS")
	v.BindEnv("voice.max_restarts", "VOICE_MAX_RESTARTS")
	v.BindEnv("voice.restart_delay_ms", "VOICE_RESTART_DELAY_MS")
	v.BindEnv("voice.resume_delay_ms", "VOICE_RESUME_DELAY_MS")

	v.BindEnv("stt.backend", "STT_BACKEND")
	v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
	v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")
	v.BindEnv("deepgram.ws_url", "DEEPGRAM_WS_URL")

	v.BindEnv("llm.endpoint", "LLM_ENDPOINT")
	v.BindEnv("llm.timeout_ms", "LLM_TIMEOUT_MS")

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.MetricsAddr = v.GetString("server.metrics_addr")
	c.Server.GRPCAddr = v.GetString("server.grpc_addr")

	c.Auth.TokenSecret = v.GetString("auth.token_secret")
	c.Auth.TokenTTLMin = v.GetInt("auth.token_ttl_min")
	c.Auth.TokenSkewSecs = v.GetInt("auth.token_skew_secs")

	c.Voice.WakeWords = phrases(v.Get("voice.wake_words"))
	c.Voice.CloseWords = phrases(v.Get("voice.close_words"))
	c.Voice.SilenceTimeoutMs = v.GetInt("voice.silence_timeout_ms")
	c.Voice.MaxRestarts = v.GetInt("voice.max_restarts")
	c.Voice.RestartDelayMs = v.GetInt("voice.restart_delay_ms")
	c.Voice.ResumeDelayMs = v.GetInt("voice.resume_delay_ms")

	c.STT.Backend = strings.ToLower(v.GetString("stt.backend"))
	c.Deepgram.APIKey = v.GetString("deepgram.api_key")
	c.Deepgram.Model = v.GetString("deepgram.model")
	c.Deepgram.Language = v.GetString("deepgram.language")
	c.Deepgram.WSURL = v.GetString("deepgram.ws_url")

	c.LLM.Endpoint = v.GetString("llm.endpoint")
	c.LLM.TimeoutMs = v.GetInt("llm.timeout_ms")

	if c.STT.Backend != "browser" && c.STT.Backend != "deepgram" {
		return Config{}, fmt.Errorf("stt.backend must be browser or deepgram, got %q", c.STT.Backend)
	}
	return c, nil
}

// VoiceConfig converts the voice section for the controller. Clamping of
// MaxRestarts happens in the controller.
func (c Config) VoiceConfig() voice.Config {
	return voice.Config{
		WakeWords:      c.Voice.WakeWords,
		CloseWords:     c.Voice.CloseWords,
		SilenceTimeout: time.Duration(c.Voice.SilenceTimeoutMs) * time.Millisecond,
		MaxRestarts:    c.Voice.MaxRestarts,
		RestartDelay:   time.Duration(c.Voice.RestartDelayMs) * time.Millisecond,
		ResumeDelay:    time.Duration(c.Voice.ResumeDelayMs) * time.Millisecond,
	}
}

// phrases accepts a list from a config file or a comma separated env value.
func phrases(raw any) []string {
	var parts []string
	switch t := raw.(type) {
	case []string:
		parts = t
	case []any:
		for _, p := range t {
			parts = append(parts, toString(p))
		}
	case string:
		parts = strings.Split(t, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toString(v any) string { return fmt.Sprint(v) }
