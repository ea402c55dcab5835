package probes

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/culture-union/checkpulse/models"
)

// PingProber shells out to the system ping binary with a single probe
// packet. Success is the process exiting zero; the round-trip time is
// parsed from the echo reply line when present.
type PingProber struct {
	timeout time.Duration
}

func NewPingProber(timeout time.Duration) *PingProber {
	return &PingProber{timeout: timeout}
}

func (p *PingProber) Probe(ctx context.Context, task models.Task) models.Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ping", "-c", "1", task.Target)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()

	data := &models.ResultData{
		Type:   models.CheckPing,
		Output: output,
	}

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return models.Result{
			Status: models.StatusFail,
			Data:   data,
			Error:  detail,
		}
	}

	result := models.Result{
		Status: models.StatusOK,
		Data:   data,
	}
	if rtt, ok := parsePingTime(output); ok {
		result.ResponseTime = &rtt
	}
	return result
}

// parsePingTime extracts the round-trip time from a "time=12.3 ms" token
// and returns it in seconds.
func parsePingTime(output string) (float64, bool) {
	for _, field := range strings.Fields(output) {
		if !strings.HasPrefix(field, "time=") {
			continue
		}
		ms, err := strconv.ParseFloat(strings.TrimPrefix(field, "time="), 64)
		if err != nil {
			return 0, false
		}
		return ms / 1000, true
	}
	return 0, false
}
