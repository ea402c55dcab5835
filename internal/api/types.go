package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/culture-union/checkpulse/models"
)

// CheckRequest is the body of POST /api/checks.
type CheckRequest struct {
	Target     string `json:"target" validate:"required,min=1,max=512"`
	Type       string `json:"type" validate:"required"`
	Port       int    `json:"port" validate:"omitempty,min=1,max=65535"`
	RecordType string `json:"record_type" validate:"omitempty,alpha,max=10"`
}

// CheckAccepted is the response to a successful submission.
type CheckAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Parts  int    `json:"parts,omitempty"`
}

// PendingResponse is returned while no result exists for an id.
type PendingResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GroupResponse aggregates a full check's sibling results.
type GroupResponse struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Results []models.Result `json:"results"`
}

// AgentRequest is the body of POST /api/agents.
type AgentRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=128"`
	Description  string `json:"description" validate:"omitempty,max=1024"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

// AgentStatus is an agent record annotated with its live connection
// state.
type AgentStatus struct {
	models.Agent
	Online bool `json:"online"`
}

// AgentsResponse lists registered agents.
type AgentsResponse struct {
	Count  int           `json:"count"`
	Agents []AgentStatus `json:"agents"`
}

// PresenceResponse lists currently connected agents.
type PresenceResponse struct {
	Count  int               `json:"count"`
	Agents []models.Presence `json:"agents"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// OnlineCount is the frame pushed to status WebSocket subscribers.
type OnlineCount struct {
	Online int `json:"online"`
}

// CustomValidator wires go-playground/validator into Echo.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements echo.Validator.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		fieldErrors := map[string]string{}
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fieldErrors[fe.Field()] = fe.Tag()
			}
		}
		return ValidationError("Validation failed", fieldErrors)
	}
	return nil
}
