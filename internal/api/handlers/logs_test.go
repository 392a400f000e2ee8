package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestDeleteUnauthorizedRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewLogHandler(nil, nil)
	r := gin.New()
	r.DELETE("/unauthorized/:id", h.DeleteUnauthorized)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/unauthorized/not-a-number", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
