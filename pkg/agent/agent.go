// Package agent implements the reference CheckPulse remote agent: a
// long-lived WebSocket client that receives task frames from a server,
// executes them with the standard probe set and reports result frames
// back. The checkpulse binary embeds this package for its `agent`
// command.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/culture-union/checkpulse/internal/probes"
	"github.com/culture-union/checkpulse/models"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Options configures an Agent.
type Options struct {
	// ServerURL is the agent WebSocket endpoint,
	// e.g. ws://localhost:8080/ws/agent
	ServerURL string

	// APIKey authenticates this agent.
	APIKey string

	// CheckTimeout bounds each probe. Zero means 10s.
	CheckTimeout time.Duration

	// ReconnectMin and ReconnectMax bound the exponential backoff
	// between connection attempts. Zero values default to 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Probes overrides the default probe set. Mostly for tests.
	Probes probes.Set
}

// Agent is a remote check executor.
type Agent struct {
	opts Options
	set  probes.Set
}

// New validates opts and returns an Agent.
func New(opts Options) (*Agent, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if _, err := url.Parse(opts.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}

	set := opts.Probes
	if set == nil {
		set = probes.DefaultSet(opts.CheckTimeout)
	}

	return &Agent{opts: opts, set: set}, nil
}

// Run connects to the server and serves tasks until ctx is cancelled.
// Dropped connections are retried with exponential backoff; the backoff
// starts over after every established session, so a flaky stretch does
// not penalize reconnects forever. A rejection with a policy close code
// (bad api key) is terminal, since retrying cannot fix the credential.
func (a *Agent) Run(ctx context.Context) error {
	backoff := a.opts.ReconnectMin

	for {
		connected, err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isCredentialRejection(err) {
			return fmt.Errorf("server rejected api key: %w", err)
		}
		if connected {
			backoff = a.opts.ReconnectMin
		}
		if err != nil {
			log.Printf("agent: connection lost: %v (retrying in %s)", err, backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > a.opts.ReconnectMax {
			backoff = a.opts.ReconnectMax
		}
	}
}

// session runs one connection from dial to disconnect. The bool reports
// whether the dial succeeded, so Run can tell a dead endpoint from a
// dropped session.
func (a *Agent) session(ctx context.Context) (bool, error) {
	endpoint, err := a.endpoint()
	if err != nil {
		return false, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", a.opts.ServerURL, err)
	}
	defer conn.Close()

	log.Printf("agent: connected to %s", a.opts.ServerURL)

	// Close the socket when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var writeMu sync.Mutex
	go a.pingLoop(conn, &writeMu, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var frame models.TaskFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("agent: malformed frame: %v", err)
			continue
		}
		if frame.Type != models.FrameTask {
			continue
		}

		// Execute concurrently so a slow traceroute does not block the
		// read pump and starve keepalives.
		go a.executeAndReport(ctx, conn, &writeMu, frame.Data)
	}
}

func (a *Agent) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (a *Agent) executeAndReport(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, task models.Task) {
	result := probes.Execute(ctx, a.set, task)

	writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(models.ResultFrame{
		Type:   models.FrameResult,
		Result: &result,
	})
	writeMu.Unlock()

	if err != nil {
		log.Printf("agent: report result for task %s: %v", task.ID, err)
		return
	}
	log.Printf("agent: task %s (%s %s) -> %s", task.ID, task.Type, task.Target, result.Status)
}

// endpoint appends the api key to the server url's query string.
func (a *Agent) endpoint() (string, error) {
	u, err := url.Parse(a.opts.ServerURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api_key", a.opts.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// isCredentialRejection reports whether the server closed the
// connection with one of the handshake policy codes.
func isCredentialRejection(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == 4001 || closeErr.Code == 4003
}
