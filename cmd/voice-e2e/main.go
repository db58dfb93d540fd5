package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
)

// frame mirrors the agent's page message.
type frame struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type created struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func main() {
	_ = godotenv.Load()

	defaultServer := "http://localhost:8080"
	if v := os.Getenv("AGENT_URL"); v != "" {
		defaultServer = v
	}
	server := flag.String("server", defaultServer, "Agent base URL (env AGENT_URL)")
	say := flag.String("say", "wake up,what is this video about", "Comma-separated utterances, one per recognition session")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sess, err := createSession(ctx, *server)
	if err != nil {
		log.Fatal().Err(err).Msg("create session")
	}
	log.Info().Str("sid", sess.SessionID).Msg("session created")

	u, err := url.Parse(*server)
	if err != nil {
		log.Fatal().Err(err).Msg("parse server url")
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/client"
	u.RawQuery = url.Values{"session_id": {sess.SessionID}, "token": {sess.Token}}.Encode()

	c, _, err := ws.Dial(ctx, u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial agent")
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	send := func(typ string, seq int64, payload map[string]any) {
		b, _ := json.Marshal(frame{Type: typ, TsMs: time.Now().UnixMilli(), SessionID: sess.SessionID, Seq: seq, Payload: payload})
		if err := c.Write(ctx, ws.MessageText, b); err != nil {
			log.Fatal().Err(err).Str("type", typ).Msg("write")
		}
		fmt.Printf("-> %s seq=%d %v\n", typ, seq, payload)
	}

	var utterances []string
	for _, s := range strings.Split(*say, ",") {
		if s = strings.TrimSpace(s); s != "" {
			utterances = append(utterances, s)
		}
	}

	send("hello", 0, map[string]any{"speech_supported": true})
	send("playback_started", 0, nil)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("read")
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("bad frame")
			continue
		}
		fmt.Printf("<- %s seq=%d %v\n", f.Type, f.Seq, f.Payload)

		switch f.Type {
		case "recognition_start":
			send("recognition_started", f.Seq, nil)
			if len(utterances) > 0 {
				text := utterances[0]
				utterances = utterances[1:]
				send("recognition_result", f.Seq, map[string]any{"text": text, "final": false})
				send("recognition_result", f.Seq, map[string]any{"text": text, "final": true})
			}
		case "recognition_stop":
			send("recognition_ended", f.Seq, nil)
		case "assistant_reply":
			if len(utterances) == 0 {
				log.Info().Msg("script finished")
				send("playback_paused", 0, nil)
				return
			}
		case "voice_unavailable", "voice_idle":
			log.Error().Str("type", f.Type).Msg("voice stopped")
			os.Exit(1)
		}
	}
}

func createSession(ctx context.Context, server string) (created, error) {
	var out created
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/sessions", strings.NewReader(`{"backend":"browser"}`))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return out, fmt.Errorf("create session: status %d", resp.StatusCode)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}
