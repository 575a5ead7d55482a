package handlers

import (
	"net/http"
	"time"

	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/gin-gonic/gin"
)

// usageWindow is how many days of history GetMyUsage reports
const usageWindow = 30

type usageTotals struct {
	Requests     int64 `json:"requests"`
	Rooms        int64 `json:"rooms"`
	Members      int64 `json:"members"`
	Negotiations int64 `json:"negotiations"`
	Responses    int64 `json:"responses"`
}

func (t *usageTotals) add(u database.APIUsage) {
	t.Requests += int64(u.RequestCount)
	t.Rooms += int64(u.TotalRooms)
	t.Members += int64(u.TotalMembers)
	t.Negotiations += int64(u.Negotiations)
	t.Responses += int64(u.Responses)
}

// GetMyUsage reports the caller's recent passes, proposals and responses
// along with how much of today's allowance is spent
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	var usage []database.APIUsage
	if err := h.DB.Where("key_id = ?", apiKey.ID).Order("date desc").Limit(usageWindow).Find(&usage).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	today := time.Now().Format("2006-01-02")
	var totals, todays usageTotals
	for _, u := range usage {
		totals.add(u)
		if u.Date == today {
			todays.add(u)
		}
	}

	// negotiations per pass shows how contested the caller's rooms are
	var perPass float64
	if totals.Rooms > 0 {
		perPass = float64(totals.Negotiations) / float64(totals.Rooms)
	}

	remaining := int64(apiKey.RateLimit) - todays.Requests
	if remaining < 0 {
		remaining = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":              apiKey.Name,
		"rate_limit":            apiKey.RateLimit,
		"remaining_today":       remaining,
		"today":                 todays,
		"totals":                totals,
		"negotiations_per_pass": perPass,
		"usage_history":         usage,
	})
}
