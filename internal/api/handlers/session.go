package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/auth"
)

// SessionHandler exposes the running authentication session to the
// host UI: current state, logout, and the failure escape hatch.
type SessionHandler struct {
	engine     *auth.Engine
	controller *auth.Controller
}

func NewSessionHandler(engine *auth.Engine, controller *auth.Controller) *SessionHandler {
	return &SessionHandler{engine: engine, controller: controller}
}

func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":             h.engine.State(),
		"committed_user_id": h.controller.CommittedUserID(),
	})
}

// Logout resets the session so a new authentication cycle can begin.
func (h *SessionHandler) Logout(c *gin.Context) {
	h.controller.Logout()
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Fail marks the current cycle as failed. The engine never reaches
// FAILED on its own; this exists for host-driven timeout logic.
func (h *SessionHandler) Fail(c *gin.Context) {
	h.engine.Fail()
	c.JSON(http.StatusOK, gin.H{"state": h.engine.State()})
}
