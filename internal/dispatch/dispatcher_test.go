package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

// fakeDirectory simulates the agent registry.
type fakeDirectory struct {
	live     []string
	sent     map[string][]models.Task
	sendFail bool
}

func newFakeDirectory(live ...string) *fakeDirectory {
	return &fakeDirectory{live: live, sent: make(map[string][]models.Task)}
}

func (f *fakeDirectory) LiveAgents() []string { return f.live }

func (f *fakeDirectory) Send(apiKey string, task models.Task) bool {
	if f.sendFail {
		return false
	}
	f.sent[apiKey] = append(f.sent[apiKey], task)
	return true
}

func newTestDispatcher(t *testing.T, dir AgentDirectory) (*Dispatcher, *storage.Storage, *storage.Queue) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "checkpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := storage.NewQueue(s)
	return New(s, q, dir, RandomPolicy{}), s, q
}

func TestSubmitQueuesWithoutAgents(t *testing.T) {
	d, s, q := newTestDispatcher(t, newFakeDirectory())

	receipt, err := d.Submit("example.com", models.CheckPing, 0, "")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)
	assert.Zero(t, receipt.Parts)

	task, err := s.GetTask(receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.CheckPing, task.Type)
	assert.Empty(t, task.GroupID)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitPushesToAgent(t *testing.T) {
	dir := newFakeDirectory("key-1")
	d, _, q := newTestDispatcher(t, dir)

	receipt, err := d.Submit("example.com", models.CheckTCP, 443, "")
	require.NoError(t, err)

	require.Len(t, dir.sent["key-1"], 1)
	sent := dir.sent["key-1"][0]
	assert.Equal(t, receipt.ID, sent.ID)
	assert.Equal(t, 443, sent.Port)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "delivered task must not also be queued")
}

func TestSubmitFallsBackToQueueOnSendFailure(t *testing.T) {
	dir := newFakeDirectory("key-1")
	dir.sendFail = true
	d, _, q := newTestDispatcher(t, dir)

	_, err := d.Submit("example.com", models.CheckDNS, 0, "MX")
	require.NoError(t, err)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitUnknownType(t *testing.T) {
	d, _, _ := newTestDispatcher(t, newFakeDirectory())

	_, err := d.Submit("example.com", models.CheckType("smoke"), 0, "")
	assert.Error(t, err)
}

func TestSubmitFullFansOut(t *testing.T) {
	d, s, q := newTestDispatcher(t, newFakeDirectory())

	receipt, err := d.Submit("example.com", models.CheckFull, 8443, "TXT")
	require.NoError(t, err)
	assert.Equal(t, 5, receipt.Parts)

	anchor, err := s.GetTask(receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, models.CheckFull, anchor.Type)
	assert.Equal(t, receipt.ID, anchor.GroupID)

	tasks, err := s.TasksByGroup(receipt.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 6) // anchor + 5 siblings

	seen := map[models.CheckType]models.Task{}
	for _, task := range tasks {
		seen[task.Type] = task
	}
	for _, ct := range models.FanoutTypes() {
		sibling, ok := seen[ct]
		require.True(t, ok, "missing %s sibling", ct)
		assert.Equal(t, "example.com", sibling.Target)
		assert.Equal(t, receipt.ID, sibling.GroupID)
		assert.NotEqual(t, receipt.ID, sibling.ID)
	}

	// Every sibling inherits target and port; only dns gets the record type.
	assert.Equal(t, 8443, seen[models.CheckTCP].Port)
	assert.Equal(t, 8443, seen[models.CheckPing].Port)
	assert.Equal(t, "TXT", seen[models.CheckDNS].RecordType)
	assert.Empty(t, seen[models.CheckHTTP].RecordType)

	// Only the 5 executable siblings are queued; never the anchor.
	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for i := 0; i < 5; i++ {
		task, ok, err := q.PopWait(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEqual(t, models.CheckFull, task.Type)
	}
}

func TestRandomPolicy(t *testing.T) {
	assert.Empty(t, RandomPolicy{}.Pick(nil))
	assert.Equal(t, "only", RandomPolicy{}.Pick([]string{"only"}))
	assert.Contains(t, []string{"a", "b"}, RandomPolicy{}.Pick([]string{"a", "b"}))
}

func TestRoundRobinPolicy(t *testing.T) {
	p := &RoundRobinPolicy{}
	candidates := []string{"a", "b", "c"}

	assert.Equal(t, "a", p.Pick(candidates))
	assert.Equal(t, "b", p.Pick(candidates))
	assert.Equal(t, "c", p.Pick(candidates))
	assert.Equal(t, "a", p.Pick(candidates))
	assert.Empty(t, p.Pick(nil))
}
