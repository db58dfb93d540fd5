package stt

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type DGConfig struct {
	Model         string
	Language      string
	EndpointingMs int
	UtterEndMs    int
	BaseURL       string
}

func (c DGConfig) listenURL() string {
	q := url.Values{}
	q.Set("model", orDefault(c.Model, "nova-2"))
	q.Set("language", orDefault(c.Language, "en-US"))
	q.Set("smart_format", "true")
	q.Set("endpointing", fmt.Sprintf("%d", nzd(c.EndpointingMs, 1000)))
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", fmt.Sprintf("%d", nzd(c.UtterEndMs, 1500)))
	q.Set("vad_events", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("channels", "1")
	return orDefault(c.BaseURL, "wss://api.deepgram.com/v1/listen") + "?" + q.Encode()
}

type dgEvent struct {
	Type string // "interim" | "final" | "error" | "meta" | "speech_started"
	Text string
}

// transcriptTracker turns Deepgram frames into transcript events. It keeps
// the last interim that was never finalized so an UtteranceEnd can stand in
// for a missed final.
type transcriptTracker struct {
	pending string
}

// parse decodes one text frame. ok is false for frames that carry nothing
// the controller cares about.
func (t *transcriptTracker) parse(data []byte) (dgEvent, bool, error) {
	if len(data) == 0 {
		return dgEvent{}, false, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return dgEvent{}, false, fmt.Errorf("decode deepgram frame: %w", err)
	}

	typ := toString(m["type"])
	switch {
	case strings.EqualFold(typ, "Error") || m["error"] != nil:
		msg := toString(m["error"])
		if msg == "" {
			msg = toString(m["message"])
		}
		if msg == "" {
			msg = "provider_error"
		}
		return dgEvent{Type: "error", Text: msg}, true, nil

	case strings.EqualFold(typ, "Metadata"):
		return dgEvent{Type: "meta"}, true, nil

	case strings.EqualFold(typ, "SpeechStarted"):
		metricUtteranceEvents.WithLabelValues("speech_started").Inc()
		return dgEvent{Type: "speech_started"}, true, nil

	case strings.EqualFold(typ, "UtteranceEnd"):
		metricUtteranceEvents.WithLabelValues("utterance_end").Inc()
		text := t.pending
		t.pending = ""
		if text == "" {
			return dgEvent{}, false, nil
		}
		metricFinalEmitted.WithLabelValues("interim_fallback").Inc()
		return dgEvent{Type: "final", Text: text}, true, nil

	case strings.EqualFold(typ, "Results") || m["channel"] != nil:
		// alternatives live under "channel", not "results"
		var text string
		if channel, ok := m["channel"].(map[string]any); ok {
			if alts, ok := channel["alternatives"].([]any); ok && len(alts) > 0 {
				if a0, ok := alts[0].(map[string]any); ok {
					text = strings.TrimSpace(toString(a0["transcript"]))
				}
			}
		}
		if text == "" {
			if toBool(m["is_final"]) {
				metricEmptyFinalSkipped.Inc()
			}
			return dgEvent{}, false, nil
		}
		if toBool(m["is_final"]) || toBool(m["speech_final"]) {
			t.pending = ""
			metricFinalEmitted.WithLabelValues("provider").Inc()
			return dgEvent{Type: "final", Text: text}, true, nil
		}
		t.pending = text
		return dgEvent{Type: "interim", Text: text}, true, nil
	}
	return dgEvent{}, false, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nzd(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}
