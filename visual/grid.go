// Package visual renders heatmaps and boxplots comparing simulation
// parameters against discovery accuracy.
package visual

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
)

// grid maps two categorical axes onto a value matrix. Cells without an
// observed parameter combination hold NaN and are left blank by the heatmap.
type grid struct {
	xs, ys []string
	z      *mat.Dense // len(ys) rows x len(xs) cols
}

func (g *grid) Dims() (c, r int)   { return len(g.xs), len(g.ys) }
func (g *grid) Z(c, r int) float64 { return g.z.At(r, c) }
func (g *grid) X(c int) float64    { return float64(c) }
func (g *grid) Y(r int) float64    { return float64(r) }

// sortLabels sorts axis labels numerically where possible, lexicographically
// otherwise.
func sortLabels(labels []string) {
	sort.Slice(labels, func(i, j int) bool {
		a, errA := strconv.ParseFloat(labels[i], 64)
		b, errB := strconv.ParseFloat(labels[j], 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return labels[i] < labels[j]
	})
}

// uniqueLabels returns the sorted distinct values of a label column.
func uniqueLabels(col []string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, v := range col {
		if !seen[v] {
			seen[v] = true
			labels = append(labels, v)
		}
	}
	sortLabels(labels)
	return labels
}

// buildGrid arranges z values by their x and y labels.
func buildGrid(xcol, ycol []string, z []float64) *grid {
	xs := uniqueLabels(xcol)
	ys := uniqueLabels(ycol)
	xi := make(map[string]int, len(xs))
	for i, v := range xs {
		xi[v] = i
	}
	yi := make(map[string]int, len(ys))
	for i, v := range ys {
		yi[v] = i
	}
	m := mat.NewDense(len(ys), len(xs), nil)
	for r := 0; r < len(ys); r++ {
		for c := 0; c < len(xs); c++ {
			m.Set(r, c, math.NaN())
		}
	}
	for i := range z {
		m.Set(yi[ycol[i]], xi[xcol[i]], z[i])
	}
	return &grid{xs: xs, ys: ys, z: m}
}

// labelTicks places one tick per category, labelled with the category value.
type labelTicks []string

func (l labelTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, s := range l {
		v := float64(i)
		if v < min || v > max {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: v, Label: s})
	}
	return ticks
}
