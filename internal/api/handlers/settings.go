package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/alert"
)

type SettingsHandler struct {
	mailer *alert.Mailer
}

func NewSettingsHandler(mailer *alert.Mailer) *SettingsHandler {
	return &SettingsHandler{mailer: mailer}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	s := h.mailer.Settings()
	// Never echo the password back.
	s.SenderPassword = ""
	c.JSON(http.StatusOK, s)
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var req alert.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// An empty password in the request means keep the stored one.
	if req.SenderPassword == "" {
		req.SenderPassword = h.mailer.Settings().SenderPassword
	}

	if err := h.mailer.Save(req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// Test verifies the SMTP credentials without sending an alert.
func (h *SettingsHandler) Test(c *gin.Context) {
	if err := h.mailer.TestConnection(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
