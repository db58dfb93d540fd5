package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"videochat/agent/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			fmt.Fprintf(&b, " - %s", c.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkLLM(ctx, cfg),
		checkSTT(cfg),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	return HealthStatus{OK: allOK, Checks: checks, CheckedAt: time.Now().UTC()}
}

// checkLLM only needs the endpoint to answer; any HTTP status short of a
// 5xx means the service is up.
func checkLLM(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "llm"}

	if cfg.LLM.Endpoint == "" {
		result.Error = "LLM_ENDPOINT not set"
		result.Latency = time.Since(start)
		return result
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, cfg.LLM.Endpoint, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()
	result.Latency = time.Since(start)

	if resp.StatusCode >= 500 {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}
	result.OK = true
	return result
}

func checkSTT(cfg config.Config) CheckResult {
	result := CheckResult{Name: "stt_" + cfg.STT.Backend}
	if cfg.STT.Backend == "deepgram" && cfg.Deepgram.APIKey == "" {
		result.Error = "DEEPGRAM_API_KEY not set"
		return result
	}
	result.OK = true
	return result
}
