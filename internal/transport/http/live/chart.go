package livehttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"contra/internal/logger"
)

const equityChartPoints = 500

// handleEquityChart renders the account balance history as a standalone
// HTML page.
func (h *handler) handleEquityChart(c *gin.Context) {
	if h.trades == nil {
		c.String(http.StatusServiceUnavailable, "equity history is not configured")
		return
	}
	points, err := h.trades.EquityHistory(c.Request.Context(), equityChartPoints)
	if err != nil {
		c.String(http.StatusInternalServerError, "equity history: %v", err)
		return
	}

	xAxis := make([]string, 0, len(points))
	series := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		xAxis = append(xAxis, p.At.Format("01-02 15:04"))
		series = append(series, opts.LineData{Value: p.Balance})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:     types.ThemeWesteros,
			PageTitle: "Equity Curve",
			Width:     "1200px",
			Height:    "520px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Account Equity (USDT)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("equity", series,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(c.Writer); err != nil {
		// the response is already partially written, nothing to send back
		logger.Warnf("equity chart render failed: %v", err)
	}
}
