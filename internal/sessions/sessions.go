package sessions

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/zapboard/whatsapp-inbox-api/internal/ingest"
	"github.com/zapboard/whatsapp-inbox-api/internal/types"
	"github.com/zapboard/whatsapp-inbox-api/internal/webhook"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/session"
	"github.com/zapboard/whatsapp-inbox-api/pkg/validation"
	"github.com/zapboard/whatsapp-inbox-api/pkg/wabridge"
)

var tracker *session.Tracker

// Configure wires the process-wide tracker. Called once from startup.
func Configure(t *session.Tracker) {
	tracker = t
}

func clientIDFromLocals(c *fiber.Ctx) string {
	if v, ok := c.Locals("client_id").(string); ok {
		return v
	}
	return ""
}

// CreateSession
// @Summary     Create Session
// @Description Register a session and walk it to qr_pending
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       body body types.RequestCreateSession true "Session details"
// @Success     201
// @Failure     400
// @Router      /sessions [post]
func CreateSession(c *fiber.Ctx) error {
	var req types.RequestCreateSession
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.Name
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	clientID := clientIDFromLocals(c)
	if clientID == "" {
		clientID = req.ClientID
	}
	if err := validation.ValidateClientID(clientID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	var s session.Session
	var err error
	if wabridge.Enabled() {
		s, err = wabridge.Login(sessionID, clientID)
	} else {
		s, err = tracker.Create(sessionID, clientID)
	}
	if err != nil {
		return router.ResponseInternalError(c, "Failed to create session: "+err.Error())
	}

	log.ClientOp(clientID, "session_create").Info("Session " + sessionID + " is " + string(s.Status))

	return router.ResponseCreatedWithData(c, "Session created successfully", s)
}

// GetSession
// @Summary     Get Session
// @Description Get the current session snapshot
// @Tags        Sessions
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200
// @Failure     404
// @Router      /sessions/{id} [get]
func GetSession(c *fiber.Ctx) error {
	s, err := tracker.Get(c.Params("id"))
	if err != nil {
		return router.ResponseNotFound(c, "Session not found")
	}

	clientID := clientIDFromLocals(c)
	if clientID != "" && s.ClientID != clientID {
		return router.ResponseNotFound(c, "Session not found")
	}

	return router.ResponseSuccessWithData(c, "Session retrieved successfully", s)
}

// ListSessions
// @Summary     List Sessions
// @Description List sessions for the authenticated client
// @Tags        Sessions
// @Produce     json
// @Success     200
// @Router      /sessions [get]
func ListSessions(c *fiber.Ctx) error {
	sessions := tracker.List(clientIDFromLocals(c))
	if sessions == nil {
		sessions = []session.Session{}
	}
	return router.ResponseSuccessWithData(c, "Sessions retrieved successfully", sessions)
}

// DeleteSession
// @Summary     Disconnect Session
// @Description Disconnect and remove the session
// @Tags        Sessions
// @Produce     json
// @Param       id path string true "Session ID"
// @Success     200
// @Failure     404
// @Router      /sessions/{id} [delete]
func DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")

	s, err := tracker.Get(id)
	if err != nil {
		return router.ResponseNotFound(c, "Session not found")
	}

	clientID := clientIDFromLocals(c)
	if clientID != "" && s.ClientID != clientID {
		return router.ResponseNotFound(c, "Session not found")
	}

	if wabridge.Enabled() {
		_ = wabridge.Logout(id)
	}
	if err := tracker.Disconnect(id); err != nil {
		return router.ResponseNotFound(c, "Session not found")
	}

	ingest.DispatchSessionEvent(context.Background(), s.ClientID, webhook.EventSessionDisconnected, id)
	log.ClientOp(s.ClientID, "session_delete").Info("Session " + id + " disconnected")

	return router.ResponseSuccess(c, "Session disconnected successfully")
}
