package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"vitalwatch/internal/service"
)

const batchRecommendations = 3

func (h *Handlers) predict(c *gin.Context) {
	var in service.SensorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c, err)
		return
	}
	if err := in.Validate(); err != nil {
		h.writeError(c, "Prediction error: ", err)
		return
	}

	res := h.svc.Classify(in.Vitals())
	c.JSON(http.StatusOK, predictionResponse{
		RiskLevel:       res.Level,
		Confidence:      res.Confidence,
		RiskScore:       res.Score,
		Recommendations: res.Recommendations,
		Timestamp:       h.now(),
	})
}

func (h *Handlers) batchPredict(c *gin.Context) {
	var inputs []service.SensorInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		badJSON(c, err)
		return
	}

	var invalid []service.FieldError
	for i, in := range inputs {
		verr, ok := in.Validate().(*service.ValidationError)
		if !ok || verr == nil {
			continue
		}
		for _, f := range verr.Fields {
			f.Field = fmt.Sprintf("[%d].%s", i, f.Field)
			invalid = append(invalid, f)
		}
	}
	if len(invalid) > 0 {
		validationFailed(c, invalid)
		return
	}

	out := make([]batchItem, 0, len(inputs))
	for _, in := range inputs {
		res := h.svc.Classify(in.Vitals())
		recs := res.Recommendations
		if len(recs) > batchRecommendations {
			recs = recs[:batchRecommendations]
		}
		out = append(out, batchItem{
			DeviceID:        in.Device(h.svc.DefaultDevice()),
			RiskLevel:       res.Level,
			RiskScore:       res.Score,
			Confidence:      res.Confidence,
			Recommendations: recs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "predictions": out})
}

func (h *Handlers) modelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.model.Info())
}
