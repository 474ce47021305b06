package visual

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"compbench/result"
	"compbench/table"
)

var log = logging.MustGetLogger("visual")

const rateColors = 12

// heatmapPlot builds one rate heatmap with categorical axes, values pinned to
// [0,1].
func heatmapPlot(g *grid, pal palette.Palette, title, xLabel, yLabel string) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	h := plotter.NewHeatMap(g, pal)
	h.Min, h.Max = 0, 1
	p.Add(h)
	p.X.Tick.Marker = labelTicks(g.xs)
	p.Y.Tick.Marker = labelTicks(g.ys)
	return p, nil
}

// boxPlot builds a boxplot with one box per named group. Empty groups are
// skipped.
func boxPlot(title string, labels []string, groups [][]float64) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	for i, vals := range groups {
		if len(vals) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(30), float64(i), plotter.Values(vals))
		if err != nil {
			return nil, err
		}
		p.Add(b)
	}
	p.NominalX(labels...)
	return p, nil
}

// savePanels tiles the plots onto one canvas and writes it to path, choosing
// the image format from the extension (.png, .jpg, .tif; png by default).
// With an empty path a temporary png is written and its location logged,
// standing in for an interactive display.
func savePanels(plots [][]*plot.Plot, w, h vg.Length, path string) error {
	img := vgimg.New(w, h)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: len(plots[0]),
		PadX: vg.Millimeter * 2, PadY: vg.Millimeter * 2,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			if plots[r][c] != nil {
				plots[r][c].Draw(canvases[r][c])
			}
		}
	}

	var f *os.File
	var err error
	if path == "" {
		f, err = os.CreateTemp("", "compbench-*.png")
		if err != nil {
			return err
		}
		log.Noticef("no plot path given, writing to %s", f.Name())
		path = f.Name()
	} else {
		f, err = os.Create(path)
		if err != nil {
			return err
		}
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		c := vgimg.JpegCanvas{Canvas: img}
		_, err = c.WriteTo(f)
	case ".tif", ".tiff":
		c := vgimg.TiffCanvas{Canvas: img}
		_, err = c.WriteTo(f)
	default:
		c := vgimg.PngCanvas{Canvas: img}
		_, err = c.WriteTo(f)
	}
	return err
}

// DiscoveryHeatmap renders side-by-side TPR and TNR heatmaps over one or two
// parameter dimensions of a scored aggregated table. With a single dimension
// the heatmaps collapse to one column.
func DiscoveryHeatmap(agg *table.Table, dim1, dim2, path string) error {
	dims := []string{dim1}
	if dim2 != "" {
		dims = append(dims, dim2)
	}
	t, err := agg.GroupMean(dims...)
	if err != nil {
		return err
	}
	tpr, err := t.Num("tpr")
	if err != nil {
		return err
	}
	tnr, err := t.Num("tnr")
	if err != nil {
		return err
	}
	ycol, err := t.Str(dim1)
	if err != nil {
		return err
	}
	// dim1 indexes the rows; a missing second dimension yields a single
	// column.
	xcol := make([]string, len(ycol))
	xLabel := "x"
	if dim2 != "" {
		if xcol, err = t.Str(dim2); err != nil {
			return err
		}
		xLabel = dim2
	} else {
		for i := range xcol {
			xcol[i] = "1"
		}
	}

	pal := palette.Heat(rateColors, 1)
	pTPR, err := heatmapPlot(buildGrid(xcol, ycol, tpr), pal, "MCMC TPR", xLabel, dim1)
	if err != nil {
		return err
	}
	pTNR, err := heatmapPlot(buildGrid(xcol, ycol, tnr), pal, "MCMC TNR", xLabel, dim1)
	if err != nil {
		return err
	}
	return savePanels([][]*plot.Plot{{pTPR, pTNR}}, 13*vg.Inch, 5*vg.Inch, path)
}

// parseSamples splits the canonical "[controls cases]" group-size string.
func parseSamples(s string) (controls, cases string, err error) {
	fields := strings.Fields(strings.Trim(s, "[]"))
	if len(fields) != 2 {
		return "", "", fmt.Errorf("visual: bad n_samples value %q", s)
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err != nil {
			return "", "", fmt.Errorf("visual: bad n_samples value %q", s)
		}
	}
	return fields[0], fields[1], nil
}

// samplesAxes reshapes the stringified n_samples column into controls and
// cases label columns.
func samplesAxes(t *table.Table) (controls, cases []string, err error) {
	col, err := t.Str("n_samples")
	if err != nil {
		return nil, nil, err
	}
	controls = make([]string, len(col))
	cases = make([]string, len(col))
	for i, s := range col {
		if controls[i], cases[i], err = parseSamples(s); err != nil {
			return nil, nil, err
		}
	}
	return controls, cases, nil
}

// groupCounts collects the per-cell-type observed counts of the control and
// case groups from all runs with the given ground-truth effects.
func groupCounts(runs []*result.RunResult, wKey string) (controls, cases [][]float64) {
	for _, r := range runs {
		if len(r.Params) == 0 || r.Params[0].EffectsKey() != wKey {
			continue
		}
		for i, sub := range r.Results {
			if sub.Y == nil || i >= len(r.Params) {
				continue
			}
			n0 := r.Params[i].NSamples[0]
			rows, cols := sub.Y.Dims()
			for len(controls) < cols {
				controls = append(controls, nil)
				cases = append(cases, nil)
			}
			for row := 0; row < rows; row++ {
				for k := 0; k < cols; k++ {
					if row < n0 {
						controls[k] = append(controls[k], sub.Y.At(row, k))
					} else {
						cases[k] = append(cases[k], sub.Y.At(row, k))
					}
				}
			}
		}
	}
	return controls, cases
}

// samplesGrid filters a scored aggregated table to one ground-truth effect
// and averages it over the group-size pairs.
func samplesGrid(agg *table.Table, wKey string) (*table.Table, []string, []string, error) {
	sub, err := agg.FilterEq("w_true", wKey)
	if err != nil {
		return nil, nil, nil, err
	}
	g, err := sub.GroupMean("n_samples")
	if err != nil {
		return nil, nil, nil, err
	}
	if g.NRows() == 0 {
		return nil, nil, nil, fmt.Errorf("visual: no rows for effects %s", wKey)
	}
	controls, cases, err := samplesAxes(g)
	if err != nil {
		return nil, nil, nil, err
	}
	return g, controls, cases, nil
}

// CasesControls renders TPR and TNR heatmaps over control vs. case group
// sizes for one ground-truth effect matrix, above boxplots of the observed
// per-cell-type counts of both groups. An empty title leaves the default
// panel titles.
func CasesControls(agg *table.Table, runs []*result.RunResult, wTrue [][]float64, path, title string) error {
	wKey := fmt.Sprint(wTrue)
	g, controls, cases, err := samplesGrid(agg, wKey)
	if err != nil {
		return err
	}
	tpr, err := g.Num("tpr")
	if err != nil {
		return err
	}
	tnr, err := g.Num("tnr")
	if err != nil {
		return err
	}

	pal := palette.Heat(rateColors, 1)
	pTPR, err := heatmapPlot(buildGrid(cases, controls, tpr), pal, withTitle(title, "MCMC TPR"), "cases", "controls")
	if err != nil {
		return err
	}
	pTNR, err := heatmapPlot(buildGrid(cases, controls, tnr), pal, "MCMC TNR", "cases", "controls")
	if err != nil {
		return err
	}

	controlsY, casesY := groupCounts(runs, wKey)
	typeLabels := make([]string, len(controlsY))
	for i := range typeLabels {
		typeLabels[i] = strconv.Itoa(i + 1)
	}
	pControls, err := boxPlot("control group cell counts", typeLabels, controlsY)
	if err != nil {
		return err
	}
	pCases, err := boxPlot("case group cell counts", typeLabels, casesY)
	if err != nil {
		return err
	}

	plots := [][]*plot.Plot{{pTPR, pTNR}, {pControls, pCases}}
	return savePanels(plots, 12*vg.Inch, 10*vg.Inch, path)
}

// typePalette colors a cell type's heatmap blue when its true effect is zero
// and red otherwise.
func typePalette(effect float64) palette.Palette {
	if effect == 0 {
		return palette.Rainbow(rateColors, palette.Cyan, palette.Blue, 1, 1, 1)
	}
	return palette.Rainbow(rateColors, palette.Red, palette.Yellow, 1, 1, 1)
}

// typeRate computes the per-type discovery rate correct/(correct+false),
// NaN where a group has no counts.
func typeRate(g *table.Table, k int) ([]float64, error) {
	correct, err := g.Num(fmt.Sprintf("correct_%d", k))
	if err != nil {
		return nil, err
	}
	wrong, err := g.Num(fmt.Sprintf("false_%d", k))
	if err != nil {
		return nil, err
	}
	rate := make([]float64, len(correct))
	for i := range correct {
		rate[i] = correct[i] / (correct[i] + wrong[i])
	}
	return rate, nil
}

func withTitle(title, panel string) string {
	if title == "" {
		return panel
	}
	return title + ": " + panel
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CasesControlsPerType renders, for every cell type, a discovery-rate heatmap
// over control vs. case group sizes (blue for a zero true effect, red
// otherwise) above a controls-vs-cases count boxplot annotated with the log2
// fold-change of the group means. Expects a per-type aggregated table.
func CasesControlsPerType(k int, agg *table.Table, runs []*result.RunResult, wTrue [][]float64, path, title string) error {
	wKey := fmt.Sprint(wTrue)
	g, controls, cases, err := samplesGrid(agg, wKey)
	if err != nil {
		return err
	}
	controlsY, casesY := groupCounts(runs, wKey)
	effects := wTrue[0]
	if len(effects) < k {
		return fmt.Errorf("visual: %d effects for %d cell types", len(effects), k)
	}

	heats := make([]*plot.Plot, k)
	boxes := make([]*plot.Plot, k)
	for i := 0; i < k; i++ {
		rate, err := typeRate(g, i)
		if err != nil {
			return err
		}
		heatTitle := fmt.Sprintf("Cell type %d accuracy, effect %g", i+1, effects[i])
		if i == 0 {
			heatTitle = withTitle(title, heatTitle)
		}
		if heats[i], err = heatmapPlot(buildGrid(cases, controls, rate),
			typePalette(effects[i]), heatTitle, "cases", "controls"); err != nil {
			return err
		}

		var cvals, avals []float64
		if i < len(controlsY) {
			cvals = controlsY[i]
		}
		if i < len(casesY) {
			avals = casesY[i]
		}
		lf := round2(math.Log2(stat.Mean(avals, nil) / stat.Mean(cvals, nil)))
		boxTitle := fmt.Sprintf("Log-fold change: %g", lf)
		if boxes[i], err = boxPlot(boxTitle, []string{"controls", "cases"},
			[][]float64{cvals, avals}); err != nil {
			return err
		}
		boxes[i].Y.Min = 0
		boxes[i].Y.Max = 1000
	}

	plots := [][]*plot.Plot{heats, boxes}
	return savePanels(plots, vg.Length(k)*6*vg.Inch, 10*vg.Inch, path)
}

// typePath inserts a cell-type suffix before the path extension.
func typePath(path string, i int) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_type_%d%s", strings.TrimSuffix(path, ext), i+1, ext)
}

// CasesControlsEachType is CasesControlsPerType with one image per cell type,
// written to <path>_type_<i><ext> and annotated with the absolute difference
// of the group count means instead of the log2 fold-change.
func CasesControlsEachType(k int, agg *table.Table, runs []*result.RunResult, wTrue [][]float64, path, title string) error {
	wKey := fmt.Sprint(wTrue)
	g, controls, cases, err := samplesGrid(agg, wKey)
	if err != nil {
		return err
	}
	controlsY, casesY := groupCounts(runs, wKey)
	effects := wTrue[0]
	if len(effects) < k {
		return fmt.Errorf("visual: %d effects for %d cell types", len(effects), k)
	}

	for i := 0; i < k; i++ {
		rate, err := typeRate(g, i)
		if err != nil {
			return err
		}
		heat, err := heatmapPlot(buildGrid(cases, controls, rate),
			typePalette(effects[i]), withTitle(title, "Accuracy"), "cases", "controls")
		if err != nil {
			return err
		}

		var cvals, avals []float64
		if i < len(controlsY) {
			cvals = controlsY[i]
		}
		if i < len(casesY) {
			avals = casesY[i]
		}
		change := round2(stat.Mean(avals, nil) - stat.Mean(cvals, nil))
		box, err := boxPlot(fmt.Sprintf("Average change: %g cells", change),
			[]string{"controls", "cases"}, [][]float64{cvals, avals})
		if err != nil {
			return err
		}
		box.Y.Min = 0
		box.Y.Max = 1000

		plots := [][]*plot.Plot{{heat}, {box}}
		if err := savePanels(plots, 6*vg.Inch, 10*vg.Inch, typePath(path, i)); err != nil {
			return err
		}
	}
	return nil
}
