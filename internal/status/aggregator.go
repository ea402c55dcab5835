// Package status answers "what happened to check X": it folds the task
// and result stores into a single view, deriving "pending" from the
// absence of a result rather than from any stored state.
package status

import (
	"github.com/culture-union/checkpulse/internal/storage"
	"github.com/culture-union/checkpulse/models"
)

// Kind classifies a status lookup.
type Kind int

const (
	// Unknown means the id matches no task. Externally this is reported
	// exactly like Pending: an id that was never issued is
	// indistinguishable from one whose result has not arrived yet.
	Unknown Kind = iota

	// Pending means the task exists but no result has been reported.
	Pending

	// Settled means a single task has a stored result.
	Settled

	// Group means the id is a full-check group anchor. Once any sibling
	// has reported, Results holds exactly one entry per sibling, with
	// unreported siblings represented as pending placeholders tagged by
	// their check type.
	Group
)

// View is the outcome of a status lookup.
type View struct {
	Kind   Kind
	Result *models.Result

	// Group fields, populated when Kind is Group.
	Results  []models.Result
	Expected int
	Complete bool
}

// Aggregator reads task and result state from storage.
type Aggregator struct {
	store *storage.Storage
}

func New(store *storage.Storage) *Aggregator {
	return &Aggregator{store: store}
}

// Status resolves the state of a check id. Resolution order: a stored
// result settles a single check immediately; otherwise a group anchored
// at this id is aggregated; otherwise an existing task is pending; and
// an unknown id falls out as Unknown.
func (a *Aggregator) Status(id string) (View, error) {
	result, err := a.store.GetResult(id)
	if err != nil {
		return View{}, err
	}
	if result != nil {
		return View{Kind: Settled, Result: result}, nil
	}

	task, err := a.store.GetTask(id)
	if err != nil {
		return View{}, err
	}
	if task == nil {
		return View{Kind: Unknown}, nil
	}

	if task.Type == models.CheckFull && task.GroupID == id {
		return a.groupView(id)
	}

	return View{Kind: Pending}, nil
}

// groupView aggregates a full-check group. The anchor task never
// produces a result and is excluded from the expectation. As soon as
// one sibling has reported, every unreported sibling contributes a
// pending placeholder so the array covers the whole group; before
// that, Results stays empty and the group reads as plain pending.
func (a *Aggregator) groupView(groupID string) (View, error) {
	tasks, err := a.store.TasksByGroup(groupID)
	if err != nil {
		return View{}, err
	}

	results, err := a.store.ResultsByGroup(groupID)
	if err != nil {
		return View{}, err
	}

	reported := make(map[string]models.Result, len(results))
	for _, result := range results {
		reported[result.ID] = result
	}

	view := View{Kind: Group}
	settled := 0
	for _, task := range tasks {
		if task.ID == groupID {
			continue
		}
		view.Expected++

		if result, ok := reported[task.ID]; ok {
			settled++
			view.Results = append(view.Results, result)
			continue
		}
		if len(results) > 0 {
			view.Results = append(view.Results, models.Result{
				ID:      task.ID,
				Status:  models.StatusPending,
				Data:    &models.ResultData{Type: task.Type},
				GroupID: groupID,
			})
		}
	}

	view.Complete = view.Expected > 0 && settled >= view.Expected
	return view, nil
}
