package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/culture-union/checkpulse/models"
)

// createAgent handles POST /api/agents: it registers a new agent
// identity and hands out its api key. The key is returned in the
// response and, when SMTP is configured, additionally mailed to the
// contact address.
func (s *Server) createAgent(c echo.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	agent := models.Agent{
		ID:           uuid.NewString(),
		APIKey:       uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateAgent(agent); err != nil {
		return InternalError("Failed to register agent", err.Error())
	}

	// Mail delivery must not block or fail the registration.
	go func(a models.Agent) {
		if err := s.mailer.SendAgentKey(a); err != nil {
			log.Printf("mail agent key to %s: %v", a.ContactEmail, err)
		}
	}(agent)

	return c.JSON(http.StatusCreated, agent)
}

// listAgents handles GET /api/agents, annotating each record with
// whether it currently holds a live connection.
func (s *Server) listAgents(c echo.Context) error {
	agents, err := s.store.ListAgents()
	if err != nil {
		return InternalError("Failed to list agents", err.Error())
	}

	live := make(map[string]bool)
	for _, apiKey := range s.registry.LiveAgents() {
		live[apiKey] = true
	}

	out := make([]AgentStatus, 0, len(agents))
	for _, agent := range agents {
		out = append(out, AgentStatus{Agent: agent, Online: live[agent.APIKey]})
	}

	return c.JSON(http.StatusOK, AgentsResponse{
		Count:  len(out),
		Agents: out,
	})
}

// onlineAgents handles GET /api/agents/online, reporting the persisted
// presence rows of currently connected agents.
func (s *Server) onlineAgents(c echo.Context) error {
	rows, err := s.store.ListPresence()
	if err != nil {
		return InternalError("Failed to list presence", err.Error())
	}
	if rows == nil {
		rows = []models.Presence{}
	}

	return c.JSON(http.StatusOK, PresenceResponse{
		Count:  len(rows),
		Agents: rows,
	})
}

// deleteAgent handles DELETE /api/agents/:id. Deleting cascades: a live
// connection is closed and the presence row removed, so the agent stops
// receiving tasks immediately.
func (s *Server) deleteAgent(c echo.Context) error {
	id := c.Param("id")

	agent, err := s.store.GetAgent(id)
	if err != nil {
		return InternalError("Failed to load agent", err.Error())
	}
	if agent == nil {
		return NotFoundError("agent", id)
	}

	s.registry.CloseAgent(id)

	if err := s.store.DeleteAgent(id); err != nil {
		return InternalError("Failed to delete agent", err.Error())
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "agent deleted",
		ID:      id,
	})
}
