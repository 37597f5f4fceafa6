// Package viz renders an allocation snapshot as an interactive interference
// graph. Nodes are virtual registers sized by spill weight and colored by
// outcome; edges connect values whose live ranges overlap.
package viz

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/carbide-cc/regalloc"
)

const (
	colorAssigned = "#2f9e44"
	colorSpilled  = "#e03131"
)

// Graph builds the interference graph chart for snap.
func Graph(snap *regalloc.Snapshot) *charts.Graph {
	g := charts.NewGraph()
	g.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Register allocation",
			Subtitle: fmt.Sprintf("%d values, %d interference edges", len(snap.Nodes), len(snap.Edges)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	nodes := make([]opts.GraphNode, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		color, placement := colorAssigned, "assigned: "+n.RegName
		if n.Assigned == regalloc.RealRegInvalid {
			color, placement = colorSpilled, "spilled: "+n.Slot.String()
		}
		nodes = append(nodes, opts.GraphNode{
			Name: n.VReg.String(),
			// Weight may be +Inf, which JSON cannot carry, so it only feeds
			// the tooltip text and the symbol size.
			SymbolSize: symbolSize(n.Weight),
			Tooltip: &opts.Tooltip{
				Show: opts.Bool(true),
				Formatter: types.FuncStr(fmt.Sprintf("%s<br>stage: %s<br>weight: %.4g<br>%s",
					n.VReg, n.Stage, n.Weight, placement)),
			},
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}
	links := make([]opts.GraphLink, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		links = append(links, opts.GraphLink{
			Source: snap.Nodes[e.A].VReg.String(),
			Target: snap.Nodes[e.B].VReg.String(),
		})
	}

	g.AddSeries("interference", nodes, links).SetSeriesOptions(
		charts.WithGraphChartOpts(opts.GraphChart{
			Force:  &opts.GraphForce{Repulsion: 400, Gravity: 0.2},
			Layout: "force",
			Roam:   opts.Bool(true),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right", Formatter: "{b}"}),
	)
	return g
}

// RenderHTML writes a standalone HTML page with the graph for snap.
func RenderHTML(w io.Writer, snap *regalloc.Snapshot) error {
	page := components.NewPage()
	page.AddCharts(Graph(snap))
	return page.Render(w)
}

func symbolSize(weight float64) float64 {
	if math.IsInf(weight, 1) {
		return 30
	}
	s := 10 + 4*math.Log2(1+weight)
	if s > 30 {
		s = 30
	}
	return s
}
