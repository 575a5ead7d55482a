package handlers

import (
	"net/http"

	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/gin-gonic/gin"
)

// ValidateRoom checks a room payload without running a pass
func (h *Handler) ValidateRoom(c *gin.Context) {
	var room models.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	if verr := scheduler.ValidateRoom(room); verr != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid":  false,
			"error":  verr.Error(),
			"fields": verr.FieldErrors,
		})
		return
	}

	slots := 0
	for _, m := range room.Members {
		if !m.IsOwner && m.RequiredSlots != nil {
			slots += *m.RequiredSlots
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"stats": gin.H{
			"member_count":         len(room.Members),
			"requested_slot_count": slots,
			"assignment_count":     len(room.Assignments),
		},
	})
}
