package engine

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orjancarlsen/stock-price-prediction/pkg/response"
)

// GinHandlers contains the HTTP trigger for the daily run, used by the
// external scheduler.
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

// RunHandler handles POST requests triggering a daily run.
// Query parameter: date (YYYY-MM-DD, defaults to today). Repeating a date
// is safe; the run is idempotent per day.
func (h *GinHandlers) RunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		day := time.Now()
		if raw := c.Query("date"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				response.BadRequest(c, "date must be formatted YYYY-MM-DD")
				return
			}
			day = parsed
		}

		if err := h.engine.RunDaily(c.Request.Context(), day); err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, gin.H{"date": day.Format("2006-01-02")})
	}
}
