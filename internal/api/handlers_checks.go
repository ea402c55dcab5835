package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/culture-union/checkpulse/internal/status"
	"github.com/culture-union/checkpulse/models"
)

// createCheck handles POST /api/checks: it validates the submission,
// persists the task (or task group for full checks) and routes it for
// execution. The response is always "queued" regardless of whether the
// task went to an agent or the local queue.
func (s *Server) createCheck(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	checkType := models.CheckType(req.Type)
	if !checkType.Valid() {
		return BadRequestError("Unknown check type", req.Type)
	}

	receipt, err := s.dispatcher.Submit(req.Target, checkType, req.Port, req.RecordType)
	if err != nil {
		return InternalError("Failed to submit check", err.Error())
	}

	return c.JSON(http.StatusAccepted, CheckAccepted{
		ID:     receipt.ID,
		Status: "queued",
		Parts:  receipt.Parts,
	})
}

// getCheck handles GET /api/checks/:id. A settled single check returns
// its result document; a full-check group returns the aggregate; any id
// without a result reads as pending, including ids that were never
// issued.
func (s *Server) getCheck(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return BadRequestError("Missing check id", "")
	}

	view, err := s.aggregator.Status(id)
	if err != nil {
		return InternalError("Failed to resolve check status", err.Error())
	}

	switch view.Kind {
	case status.Settled:
		return c.JSON(http.StatusOK, view.Result)

	case status.Group:
		// A group with nothing reported yet reads exactly like a plain
		// pending check.
		if len(view.Results) == 0 {
			return c.JSON(http.StatusOK, PendingResponse{ID: id, Status: "pending"})
		}
		state := "pending"
		if view.Complete {
			state = "completed"
		}
		return c.JSON(http.StatusOK, GroupResponse{
			ID:      id,
			Status:  state,
			Results: view.Results,
		})

	default:
		// Pending and Unknown are deliberately indistinguishable.
		return c.JSON(http.StatusOK, PendingResponse{ID: id, Status: "pending"})
	}
}
