package registry

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

// fakeConn is an in-memory Conn that records written frames.
type fakeConn struct {
	mu      sync.Mutex
	written []interface{}
	closed  bool
	failAll bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {} // tests never read through the fake
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return assert.AnError
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) frames() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.written...)
}

func newTestRegistry(t *testing.T) (*Registry, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "checkpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r, err := New(s)
	require.NoError(t, err)
	return r, s
}

func registerAgent(t *testing.T, s *storage.Storage, id, key string) {
	t.Helper()
	require.NoError(t, s.CreateAgent(models.Agent{ID: id, APIKey: key, Name: "probe-" + id}))
}

func TestAcceptUnknownKey(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, ok := r.Accept("no-such-key", "203.0.113.9", &fakeConn{})
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestAcceptRegistersPresence(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	agent, ok := r.Accept("key-1", "203.0.113.9", &fakeConn{})
	require.True(t, ok)
	assert.Equal(t, "a-1", agent.ID)
	assert.Equal(t, 1, r.Count())

	rows, err := s.ListPresence()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a-1", rows[0].AgentID)
	assert.Equal(t, "203.0.113.9", rows[0].IP)

	stored, err := s.GetAgent("a-1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", stored.LastKnownIP)
}

func TestAcceptReplacesExistingConnection(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	first := &fakeConn{}
	_, ok := r.Accept("key-1", "198.51.100.1", first)
	require.True(t, ok)

	second := &fakeConn{}
	_, ok = r.Accept("key-1", "198.51.100.2", second)
	require.True(t, ok)

	assert.True(t, first.isClosed())
	assert.Equal(t, 1, r.Count())

	// Disconnecting the replaced socket must not remove the new one.
	r.Disconnect("key-1", first)
	assert.Equal(t, 1, r.Count())
}

func TestSendDeliversTaskFrame(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	conn := &fakeConn{}
	_, ok := r.Accept("key-1", "", conn)
	require.True(t, ok)

	task := models.Task{ID: "t-1", Target: "example.com", Type: models.CheckPing}
	require.True(t, r.Send("key-1", task))

	frames := conn.frames()
	require.Len(t, frames, 1)
	frame, ok := frames[0].(models.TaskFrame)
	require.True(t, ok)
	assert.Equal(t, models.FrameTask, frame.Type)
	assert.Equal(t, "t-1", frame.TaskID)
	assert.Equal(t, task, frame.Data)
}

func TestSendFailureDropsConnection(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	conn := &fakeConn{failAll: true}
	_, ok := r.Accept("key-1", "", conn)
	require.True(t, ok)

	assert.False(t, r.Send("key-1", models.Task{ID: "t-1", Type: models.CheckPing}))
	assert.Equal(t, 0, r.Count())
	assert.True(t, conn.isClosed())
}

func TestSendNoConnection(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.False(t, r.Send("key-1", models.Task{ID: "t-1", Type: models.CheckPing}))
}

func TestHandleMessageStoresResult(t *testing.T) {
	r, s := newTestRegistry(t)

	raw, err := json.Marshal(models.ResultFrame{
		Type:   models.FrameResult,
		Result: &models.Result{ID: "t-1", Status: models.StatusOK},
	})
	require.NoError(t, err)

	r.HandleMessage("key-1", raw)

	result, err := s.GetResult("t-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.StatusOK, result.Status)
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.HandleMessage("key-1", []byte("not json"))
	r.HandleMessage("key-1", []byte(`{"type":"result"}`))
	r.HandleMessage("key-1", []byte(`{"type":"telemetry","foo":1}`))
	// No panic and nothing stored is the contract.
}

func TestDisconnectRemovesPresence(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	conn := &fakeConn{}
	_, ok := r.Accept("key-1", "", conn)
	require.True(t, ok)

	r.Disconnect("key-1", conn)
	assert.Equal(t, 0, r.Count())

	rows, err := s.ListPresence()
	require.NoError(t, err)
	assert.Empty(t, rows)

	// A second disconnect of the same socket is a no-op.
	r.Disconnect("key-1", conn)
}

func TestCloseAgent(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")

	conn := &fakeConn{}
	_, ok := r.Accept("key-1", "", conn)
	require.True(t, ok)

	r.CloseAgent("a-1")
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, r.Count())

	r.CloseAgent("a-1") // unknown now, must be a no-op
}

func TestLiveAgents(t *testing.T) {
	r, s := newTestRegistry(t)
	registerAgent(t, s, "a-1", "key-1")
	registerAgent(t, s, "a-2", "key-2")

	_, ok := r.Accept("key-1", "", &fakeConn{})
	require.True(t, ok)
	_, ok = r.Accept("key-2", "", &fakeConn{})
	require.True(t, ok)

	keys := r.LiveAgents()
	assert.ElementsMatch(t, []string{"key-1", "key-2"}, keys)
}

func TestNewClearsStalePresence(t *testing.T) {
	s, err := storage.Open(filepath.Join(t.TempDir(), "checkpulse.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertPresence(models.Presence{APIKey: "stale", AgentID: "a-0"}))

	_, err = New(s)
	require.NoError(t, err)

	rows, err := s.ListPresence()
	require.NoError(t, err)
	assert.Empty(t, rows)
}
