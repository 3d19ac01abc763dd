package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

func (h *Handlers) ingest(c *gin.Context) {
	var in service.SensorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}

	reading, _, err := h.svc.Ingest(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, "Error processing data: ", err)
		return
	}
	c.JSON(http.StatusOK, newReadingResponse(reading))
}

func (h *Handlers) latest(c *gin.Context) {
	reading, err := h.svc.Latest(c.Request.Context(), h.deviceParam(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No readings found"})
		return
	}
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, newReadingResponse(reading))
}

func (h *Handlers) history(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			validationFailed(c, []service.FieldError{{Field: "hours", Rule: "int"}})
			return
		}
		hours = parsed
	}

	hist, err := h.svc.History(c.Request.Context(), h.deviceParam(c), hours)
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handlers) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), h.deviceParam(c))
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) alerts(c *gin.Context) {
	alerts, err := h.svc.Alerts(c.Request.Context(), h.deviceParam(c))
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, newAlertResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "alerts": out})
}

func (h *Handlers) resolveAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		validationFailed(c, []service.FieldError{{Field: "id", Rule: "gt", Param: "0"}})
		return
	}

	alert, err := h.svc.ResolveAlert(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Alert not found"})
		return
	}
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, newAlertResponse(alert))
}

func (h *Handlers) deviceParam(c *gin.Context) string {
	return c.DefaultQuery("device_id", h.svc.DefaultDevice())
}
