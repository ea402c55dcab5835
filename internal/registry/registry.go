// Package registry tracks live agent connections. The in-memory
// connection map is the authoritative presence source for dispatch
// decisions; the persisted presence rows in storage are a best-effort
// mirror kept for inspection endpoints.
package registry

import (
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10
)

// Conn is the subset of *websocket.Conn the registry needs. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

type agentConn struct {
	agent models.Agent
	conn  Conn

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// Registry holds the live agent connections keyed by api key. At most
// one connection exists per key: a reconnect replaces (and closes) the
// previous connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*agentConn
	store *storage.Storage
}

// New creates a registry and clears stale persisted presence rows: after
// a restart no connection survives, so every row is stale.
func New(store *storage.Storage) (*Registry, error) {
	if err := store.ClearPresence(); err != nil {
		return nil, err
	}
	return &Registry{
		conns: make(map[string]*agentConn),
		store: store,
	}, nil
}

// Accept registers a freshly upgraded connection for apiKey. It returns
// false when the key is not registered, in which case the caller should
// close the socket with a policy violation. An existing connection under
// the same key is closed and replaced.
func (r *Registry) Accept(apiKey, remoteIP string, conn Conn) (models.Agent, bool) {
	agent, err := r.store.GetAgentByKey(apiKey)
	if err != nil {
		log.Printf("registry: lookup api key: %v", err)
		return models.Agent{}, false
	}
	if agent == nil {
		return models.Agent{}, false
	}

	r.mu.Lock()
	if prev, ok := r.conns[apiKey]; ok {
		prev.conn.Close()
	}
	r.conns[apiKey] = &agentConn{agent: *agent, conn: conn}
	total := len(r.conns)
	r.mu.Unlock()

	// Mirror to storage; the map above stays authoritative if these fail.
	if err := r.store.UpsertPresence(models.Presence{
		APIKey:  apiKey,
		AgentID: agent.ID,
		Name:    agent.Name,
		IP:      remoteIP,
	}); err != nil {
		log.Printf("registry: persist presence for %s: %v", agent.Name, err)
	}
	if remoteIP != "" {
		if err := r.store.UpdateAgentIP(agent.ID, remoteIP); err != nil {
			log.Printf("registry: update agent ip for %s: %v", agent.Name, err)
		}
	}

	log.Printf("agent %s connected from %s (online: %d)", agent.Name, remoteIP, total)
	return *agent, true
}

// Listen runs the read pump for an accepted connection until it drops.
// Inbound frames are handled inline; a ping ticker keeps the connection
// alive. Listen blocks, so callers run it on the upgraded request's
// goroutine.
func (r *Registry) Listen(apiKey string, conn Conn) {
	defer r.Disconnect(apiKey, conn)

	stop := make(chan struct{})
	defer close(stop)
	go r.pingLoop(conn, stop)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("registry: read from agent: %v", err)
			}
			return
		}
		r.HandleMessage(apiKey, raw)
	}
}

func (r *Registry) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// HandleMessage processes one inbound frame from an agent. Result frames
// are persisted; malformed payloads and unknown frame types are logged
// and dropped so a misbehaving agent cannot take the read pump down.
func (r *Registry) HandleMessage(apiKey string, raw []byte) {
	var frame models.ResultFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("registry: malformed frame from agent: %v", err)
		return
	}

	switch frame.Type {
	case models.FrameResult:
		if frame.Result == nil || frame.Result.ID == "" {
			log.Printf("registry: result frame without result payload")
			return
		}
		if err := r.store.UpsertResult(*frame.Result); err != nil {
			log.Printf("registry: store agent result %s: %v", frame.Result.ID, err)
			return
		}
		log.Printf("agent result stored: task %s -> %s", frame.Result.ID, frame.Result.Status)

	default:
		log.Printf("registry: ignoring frame type %q", frame.Type)
	}
}

// Disconnect removes the connection for apiKey if it is still the one
// passed in. A reconnect that already replaced the entry is left alone,
// so a late disconnect of the old socket never kills the new one.
func (r *Registry) Disconnect(apiKey string, conn Conn) {
	r.mu.Lock()
	current, ok := r.conns[apiKey]
	if ok && current.conn == conn {
		delete(r.conns, apiKey)
	} else {
		ok = false
	}
	total := len(r.conns)
	r.mu.Unlock()

	conn.Close()
	if !ok {
		return
	}

	if err := r.store.DeletePresence(apiKey); err != nil {
		log.Printf("registry: delete presence: %v", err)
	}
	log.Printf("agent %s disconnected (online: %d)", current.agent.Name, total)
}

// CloseAgent force-closes the live connection of an agent id, if any.
// Used when the agent record is deleted.
func (r *Registry) CloseAgent(agentID string) {
	r.mu.Lock()
	var victim *agentConn
	var key string
	for apiKey, ac := range r.conns {
		if ac.agent.ID == agentID {
			victim = ac
			key = apiKey
			break
		}
	}
	if victim != nil {
		delete(r.conns, key)
	}
	r.mu.Unlock()

	if victim == nil {
		return
	}
	victim.conn.Close()
	if err := r.store.DeletePresence(key); err != nil {
		log.Printf("registry: delete presence: %v", err)
	}
	log.Printf("agent %s connection closed by admin", victim.agent.Name)
}

// Send pushes a task frame to the agent behind apiKey. Returns false
// when no connection exists or the write fails; the caller is expected
// to fall back to the local queue. A failed write also tears the
// connection down, since its state is unknown.
func (r *Registry) Send(apiKey string, task models.Task) bool {
	r.mu.RLock()
	ac, ok := r.conns[apiKey]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	frame := models.TaskFrame{
		Type:   models.FrameTask,
		TaskID: task.ID,
		Data:   task,
	}

	ac.writeMu.Lock()
	ac.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := ac.conn.WriteJSON(frame)
	ac.writeMu.Unlock()

	if err != nil {
		log.Printf("registry: push task %s to %s failed: %v", task.ID, ac.agent.Name, err)
		r.Disconnect(apiKey, ac.conn)
		return false
	}
	return true
}

// LiveAgents returns the api keys of all currently connected agents in
// random order, so iterating callers spread load without extra state.
func (r *Registry) LiveAgents() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.conns))
	for apiKey := range r.conns {
		keys = append(keys, apiKey)
	}
	r.mu.RUnlock()

	rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	return keys
}

// Count returns the number of connected agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
