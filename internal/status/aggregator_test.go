package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

func newTestAggregator(t *testing.T) (*Aggregator, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "checkpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func seedGroup(t *testing.T, s *storage.Storage, groupID string) {
	t.Helper()
	require.NoError(t, s.PutTask(models.Task{ID: groupID, Target: "example.com", Type: models.CheckFull, GroupID: groupID}))
	for _, ct := range models.FanoutTypes() {
		require.NoError(t, s.PutTask(models.Task{
			ID:      groupID + "-" + string(ct),
			Target:  "example.com",
			Type:    ct,
			GroupID: groupID,
		}))
	}
}

func TestStatusUnknown(t *testing.T) {
	a, _ := newTestAggregator(t)

	view, err := a.Status("never-issued")
	require.NoError(t, err)
	assert.Equal(t, Unknown, view.Kind)
}

func TestStatusPending(t *testing.T) {
	a, s := newTestAggregator(t)
	require.NoError(t, s.PutTask(models.Task{ID: "t-1", Target: "example.com", Type: models.CheckPing}))

	view, err := a.Status("t-1")
	require.NoError(t, err)
	assert.Equal(t, Pending, view.Kind)
	assert.Nil(t, view.Result)
}

func TestStatusSettled(t *testing.T) {
	a, s := newTestAggregator(t)
	require.NoError(t, s.PutTask(models.Task{ID: "t-1", Target: "example.com", Type: models.CheckPing}))
	require.NoError(t, s.UpsertResult(models.Result{ID: "t-1", Status: models.StatusOK}))

	view, err := a.Status("t-1")
	require.NoError(t, err)
	assert.Equal(t, Settled, view.Kind)
	require.NotNil(t, view.Result)
	assert.Equal(t, models.StatusOK, view.Result.Status)
}

func TestStatusGroupIncomplete(t *testing.T) {
	a, s := newTestAggregator(t)
	seedGroup(t, s, "g-1")

	require.NoError(t, s.UpsertResult(models.Result{ID: "g-1-ping", Status: models.StatusOK, GroupID: "g-1"}))
	require.NoError(t, s.UpsertResult(models.Result{ID: "g-1-tcp", Status: models.StatusFail, GroupID: "g-1"}))

	view, err := a.Status("g-1")
	require.NoError(t, err)
	assert.Equal(t, Group, view.Kind)
	assert.Equal(t, 5, view.Expected)
	assert.False(t, view.Complete)

	// One entry per sibling: the two reported results plus a pending
	// placeholder for each of the other three, tagged by check type.
	require.Len(t, view.Results, 5)
	byID := make(map[string]models.Result, len(view.Results))
	for _, result := range view.Results {
		byID[result.ID] = result
	}
	assert.Equal(t, models.StatusOK, byID["g-1-ping"].Status)
	assert.Equal(t, models.StatusFail, byID["g-1-tcp"].Status)
	for _, ct := range []models.CheckType{models.CheckHTTP, models.CheckDNS, models.CheckTraceroute} {
		placeholder := byID["g-1-"+string(ct)]
		assert.Equal(t, models.StatusPending, placeholder.Status)
		assert.Equal(t, "g-1", placeholder.GroupID)
		require.NotNil(t, placeholder.Data)
		assert.Equal(t, ct, placeholder.Data.Type)
	}
}

func TestStatusGroupComplete(t *testing.T) {
	a, s := newTestAggregator(t)
	seedGroup(t, s, "g-1")

	for _, ct := range models.FanoutTypes() {
		require.NoError(t, s.UpsertResult(models.Result{
			ID:      "g-1-" + string(ct),
			Status:  models.StatusOK,
			GroupID: "g-1",
		}))
	}

	view, err := a.Status("g-1")
	require.NoError(t, err)
	assert.Equal(t, Group, view.Kind)
	assert.True(t, view.Complete)
	assert.Len(t, view.Results, 5)
}

func TestStatusGroupEmpty(t *testing.T) {
	a, s := newTestAggregator(t)
	seedGroup(t, s, "g-1")

	view, err := a.Status("g-1")
	require.NoError(t, err)
	assert.Equal(t, Group, view.Kind)
	assert.Empty(t, view.Results)
	assert.False(t, view.Complete)
}

func TestStatusSiblingTaskIsPendingNotGroup(t *testing.T) {
	a, s := newTestAggregator(t)
	seedGroup(t, s, "g-1")

	view, err := a.Status("g-1-ping")
	require.NoError(t, err)
	assert.Equal(t, Pending, view.Kind)
}
