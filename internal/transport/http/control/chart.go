package control

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"tradeloop/internal/store/equity"
)

func (h *handlers) equity(c *gin.Context) {
	if h.cfg.Equity == nil {
		c.JSON(http.StatusOK, gin.H{"history": []equity.Snapshot{}})
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	snaps, err := h.cfg.Equity.Recent(ctx, queryLimit(c, 500, 5000))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snaps == nil {
		snaps = []equity.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"history": snaps})
}

func (h *handlers) equityChart(c *gin.Context) {
	var snaps []equity.Snapshot
	if h.cfg.Equity != nil {
		ctx, cancel := h.ctx(c)
		defer cancel()
		var err error
		snaps, err = h.cfg.Equity.Recent(ctx, queryLimit(c, 500, 5000))
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
	}
	page, err := renderEquityChart(snaps)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// renderEquityChart draws equity and daily P&L on one time axis.
func renderEquityChart(snaps []equity.Snapshot) ([]byte, error) {
	xAxis := make([]string, 0, len(snaps))
	eq := make([]opts.LineData, 0, len(snaps))
	pnl := make([]opts.LineData, 0, len(snaps))
	for _, s := range snaps {
		xAxis = append(xAxis, s.Time.Format("01-02 15:04"))
		eq = append(eq, opts.LineData{Value: s.Equity})
		pnl = append(pnl, opts.LineData{Value: s.DailyPnL})
	}
	subtitle := "no snapshots yet"
	if n := len(snaps); n > 0 {
		subtitle = fmt.Sprintf("%d snapshots, last equity %.2f", n, snaps[n-1].Equity)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Equity", Width: "1100px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Account equity", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).
		AddSeries("Equity", eq).
		AddSeries("Daily P&L", pnl)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
