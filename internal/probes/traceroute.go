package probes

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/culture-union/checkpulse/models"
)

const tracerouteMaxHops = "15"

// TracerouteProber shells out to the system traceroute binary with a
// capped hop count. The hop lines are returned verbatim; partial output
// from a traceroute that ran out of hops still counts as success as long
// as the process exited zero.
type TracerouteProber struct {
	timeout time.Duration
}

func NewTracerouteProber(timeout time.Duration) *TracerouteProber {
	return &TracerouteProber{timeout: timeout}
}

func (p *TracerouteProber) Probe(ctx context.Context, task models.Task) models.Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "traceroute", "-m", tracerouteMaxHops, task.Target)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	trace := splitLines(stdout.String())

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return models.Result{
			Status: models.StatusFail,
			Data:   &models.ResultData{Type: models.CheckTraceroute, Trace: trace},
			Error:  detail,
		}
	}

	return models.Result{
		Status: models.StatusOK,
		Data:   &models.ResultData{Type: models.CheckTraceroute, Trace: trace},
	}
}

func splitLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
