package http

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

// Participation answers whether a user has ever been in a room.
type Participation interface {
	Participated(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
}

type handlers struct {
	orch    *orch.Orchestrator
	cfg     *config.Config
	members Participation
}

func statusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"code": domain.CodeOf(err), "error": domain.PublicMessage(err)})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": rtc.Configuration(h.cfg.WebRTC).ICEServers})
}

// rooms lists the rooms with live connections on this instance.
func (h *handlers) rooms(c *gin.Context) {
	out := h.orch.Registry.Rooms()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *handlers) presence(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	members, err := h.orch.Presence.Members(ctx, room)
	if err != nil {
		abortWith(c, err)
		return
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	c.JSON(http.StatusOK, gin.H{"roomId": room, "users": members})
}

// messages returns the decrypted history of a room, oldest first. Only users who have
// been in the room may read it; anyone else gets the same answer as for a missing room.
func (h *handlers) messages(c *gin.Context) {
	room := domain.RoomID(c.Param("id"))
	limit := h.cfg.Relay.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			abortWith(c, domain.Validation("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if _, err := h.orch.Rooms.FindRoom(ctx, room); err != nil {
		abortWith(c, err)
		return
	}
	user, _ := auth.UserID(c)
	member, err := h.members.Participated(ctx, room, user)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !member {
		abortWith(c, domain.NotFound("room %s not found", room))
		return
	}
	msgs, err := h.orch.Messages.ListByRoom(ctx, room, limit)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": room, "messages": msgs})
}
