package handlers

import (
	"bytes"
	"net/http"

	"github.com/arnavshah/coordination-api/pkg/export"
	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// PreviewNegotiation runs the engine on one block without saving anything
func (h *Handler) PreviewNegotiation(c *gin.Context) {
	var input models.NegotiationPreviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.Service.Preview(input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.RecordUsage(c, usageDelta{Members: len(input.UnsatisfiedMembers)})
	c.JSON(http.StatusOK, n)
}

// ScheduleRoom runs an allocation pass for the room in the path
func (h *Handler) ScheduleRoom(c *gin.Context) {
	var room models.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room.ID = c.Param("roomId")

	result, err := h.Service.RunPass(c.Request.Context(), room)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.RecordUsage(c, usageDelta{Rooms: 1, Members: len(room.Members), Negotiations: len(result.Negotiations)})
	c.JSON(http.StatusOK, result)
}

// ListRoomNegotiations lists a room's negotiations, optionally by status
func (h *Handler) ListRoomNegotiations(c *gin.Context) {
	status := models.NegotiationStatus(c.Query("status"))
	list, err := h.Service.ListByRoom(c.Request.Context(), c.Param("roomId"), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"negotiations": list})
}

// GetNegotiation returns one negotiation
func (h *Handler) GetNegotiation(c *gin.Context) {
	n, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// RespondNegotiation records a member's accept or reject
func (h *Handler) RespondNegotiation(c *gin.Context) {
	var input models.RespondInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.Service.Respond(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.RecordUsage(c, usageDelta{Responses: 1})
	c.JSON(http.StatusOK, n)
}

// PostMessage appends a chat line to the negotiation
func (h *Handler) PostMessage(c *gin.Context) {
	var msg models.NegotiationMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.Service.AppendMessage(c.Request.Context(), c.Param("id"), msg)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// NegotiationPDF downloads a printable summary
func (h *Handler) NegotiationPDF(c *gin.Context) {
	n, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.NegotiationPDF(&buf, n); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=negotiation-"+n.ID+".pdf")
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// RoomEvents upgrades to a websocket that streams the room's negotiation events
func (h *Handler) RoomEvents(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger(c).Warn("websocket upgrade failed", "error", err)
		return
	}

	roomID := c.Param("roomId")
	h.logger(c).Info("websocket subscribed", "room", roomID)
	h.Hub.Serve(conn, roomID)
}
