package probes

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/culture-union/checkpulse/models"
)

const defaultTCPPort = 80

// TCPProber attempts a plain TCP connect to the target host and port.
type TCPProber struct {
	timeout time.Duration
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	return &TCPProber{timeout: timeout}
}

func (p *TCPProber) Probe(ctx context.Context, task models.Task) models.Result {
	port := task.Port
	if port == 0 {
		port = defaultTCPPort
	}

	data := &models.ResultData{
		Type: models.CheckTCP,
		Host: task.Target,
		Port: port,
	}

	dialer := net.Dialer{Timeout: p.timeout}
	addr := net.JoinHostPort(task.Target, strconv.Itoa(port))

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return models.Result{
			Status:       models.StatusFail,
			ResponseTime: &elapsed,
			Data:         data,
			Error:        err.Error(),
		}
	}
	conn.Close()

	return models.Result{
		Status:       models.StatusOK,
		ResponseTime: &elapsed,
		Data:         data,
	}
}
