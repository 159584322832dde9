package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-ledger-api/internal/middleware"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

func actorFromContext(c *gin.Context) string {
	return middleware.ActorID(c)
}

// bindJSON decodes the body into dst and renders a validation error on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// todayParam reads an optional ?today=YYYY-MM-DD override, falling back to the zone's date.
func todayParam(c *gin.Context, zone *clock.Zone) (time.Time, bool) {
	raw := c.Query("today")
	if raw == "" {
		return zone.Today(), true
	}
	today, err := clock.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "today must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return today, true
}

// sweepDateParam is todayParam for routes that write. A date past the institute's
// current date is rejected so a caller cannot expire sessions or schedule dues early.
func sweepDateParam(c *gin.Context, zone *clock.Zone) (time.Time, bool) {
	today, ok := todayParam(c, zone)
	if !ok {
		return time.Time{}, false
	}
	if current := zone.Today(); today.After(current) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "today must not be after "+current.Format(dateLayout)))
		return time.Time{}, false
	}
	return today, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
