package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/presence-hub/internal/common"
)

const maxPresenceLookup = 200

// GetPresence answers GET /presence?user_ids=1,2,3 from the live registry. Online users also get
// their session count and last activity.
func (h *Handler) GetPresence(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("user_ids"))
	if raw == "" {
		common.Fail(c, http.StatusBadRequest, 10010, "user_ids required")
		return
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxPresenceLookup {
		common.Fail(c, http.StatusBadRequest, 10012, "too many user_ids")
		return
	}
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			common.Fail(c, http.StatusBadRequest, 10011, "invalid user id")
			return
		}
		ids = append(ids, id)
	}

	reg := h.Dispatcher.Presence()
	statuses := reg.Statuses(ids)
	out := make(map[string]bool, len(statuses))
	sessions := make(map[string]int)
	lastActive := make(map[string]time.Time)
	for id, online := range statuses {
		key := strconv.FormatUint(id, 10)
		out[key] = online
		if !online {
			continue
		}
		// the user may have gone offline since Statuses
		if n := reg.SessionCount(id); n > 0 {
			sessions[key] = n
		}
		if at, ok := reg.LastActivity(id); ok {
			lastActive[key] = at.UTC()
		}
	}
	common.OK(c, gin.H{
		"status":      out,
		"sessions":    sessions,
		"last_active": lastActive,
	})
}
