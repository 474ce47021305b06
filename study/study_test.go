package study

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"compbench/result"
)

// fixtureRun builds a run with a single sub-run. The posteriors finalize to
// [2 0 4] at threshold 0.5, which against the ground truth [0 0 1] gives
// fp=1, tn=1, tp=1.
func fixtureRun(tst *testing.T, nSamples [2]int) *result.RunResult {
	sub, err := result.NewSubResult(
		[]float64{1.5, 2.5, 3.5},
		[]float64{2.0, 2.2, 4.0},
		[]float64{0.9, 0.3, 0.8},
		mat.NewDense(nSamples[0]+nSamples[1], 3, nil))
	if err != nil {
		tst.Fatal("Error building sub-result:", err)
	}
	sub.Draws = mat.NewDense(10, 3, nil)
	return &result.RunResult{
		Params: []result.SimParams{{
			Cases:      1,
			K:          3,
			NTotal:     100,
			NSamples:   nSamples,
			BTrue:      []float64{1, 1, 1},
			WTrue:      [][]float64{{0, 0, 1}},
			NumResults: 1000,
		}},
		Results: map[int]*result.SubResult{0: sub},
	}
}

func writeGarbage(fn string) error {
	return os.WriteFile(fn, []byte("not a result file"), 0666)
}

func saveRun(tst *testing.T, r *result.RunResult, dir, name string) {
	if err := r.Save(filepath.Join(dir, name)); err != nil {
		tst.Fatal("Error saving fixture:", err)
	}
}

func TestPrepare(tst *testing.T) {
	dir := tst.TempDir()
	// Two files with identical parameters, one with different group sizes
	// and one that does not match the identifier.
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_0")
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_1")
	saveRun(tst, fixtureRun(tst, [2]int{4, 4}), dir, "result_2")
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "ignored_3")

	runs, all, agg, err := Prepare(dir, "result_", 0.5, false)
	if err != nil {
		tst.Fatal("Error preparing:", err)
	}
	if len(runs) != 3 {
		tst.Error("Wrong number of runs:", len(runs))
	}
	if all.NRows() != 3 {
		tst.Error("Wrong number of raw rows:", all.NRows())
	}
	if agg.NRows() != 2 {
		tst.Error("Wrong number of groups:", agg.NRows())
	}

	ns, err := agg.Str("n_samples")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	tp, err := agg.Num("tp")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	fp, err := agg.Num("fp")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i := range ns {
		switch ns[i] {
		case "[2 3]":
			// counts summed over the two identical files
			if tp[i] != 2 || fp[i] != 2 {
				tst.Error("Wrong summed counts for [2 3]:", tp[i], fp[i])
			}
		case "[4 4]":
			if tp[i] != 1 || fp[i] != 1 {
				tst.Error("Wrong counts for [4 4]:", tp[i], fp[i])
			}
		default:
			tst.Error("Unexpected group:", ns[i])
		}
	}

	// Raw chains are dropped by default, observed counts are kept.
	for _, r := range runs {
		if r.Results[0].Draws != nil {
			tst.Error("Raw draws should be dropped")
		}
		if r.Results[0].Y == nil {
			tst.Error("Observed counts should be kept")
		}
	}
}

func TestPrepareKeep(tst *testing.T) {
	dir := tst.TempDir()
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_0")
	runs, _, _, err := Prepare(dir, "result_", 0.5, true)
	if err != nil {
		tst.Fatal("Error preparing:", err)
	}
	if runs[0].Results[0].Draws == nil {
		tst.Error("keep should retain raw draws")
	}
}

func TestPrepareEmpty(tst *testing.T) {
	dir := tst.TempDir()
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "other_0")
	if _, _, _, err := Prepare(dir, "result_", 0.5, false); err == nil {
		tst.Error("An empty match set should fail")
	}
	if _, _, _, err := Prepare(filepath.Join(dir, "missing"), "result_", 0.5, false); err == nil {
		tst.Error("A missing directory should fail")
	}
}

func TestPrepareBadFile(tst *testing.T) {
	dir := tst.TempDir()
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_0")
	if err := writeGarbage(filepath.Join(dir, "result_1")); err != nil {
		tst.Fatal("Error: ", err)
	}
	// One bad file aborts the whole batch.
	if _, _, _, err := Prepare(dir, "result_", 0.5, false); err == nil {
		tst.Error("A corrupt file should abort the batch")
	}
}

func TestPreparePerType(tst *testing.T) {
	dir := tst.TempDir()
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_0")
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_1")

	_, _, agg, err := PreparePerType(dir, "result_", 0.5, false)
	if err != nil {
		tst.Fatal("Error preparing:", err)
	}
	if agg.NRows() != 1 {
		tst.Fatal("Wrong number of groups:", agg.NRows())
	}
	correct0, err := agg.Num("correct_0")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	false0, err := agg.Num("false_0")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if correct0[0] != 0 || false0[0] != 2 {
		tst.Error("Wrong summed type 0 counts:", correct0[0], false0[0])
	}
	correct2, _ := agg.Num("correct_2")
	if correct2[0] != 2 {
		tst.Error("Wrong summed type 2 counts:", correct2[0])
	}
}

func TestPrepareMultiModel(tst *testing.T) {
	dir := tst.TempDir()
	sub, err := result.NewSubResult(
		[]float64{2, 2, 2},
		[]float64{2, 2, 2},
		[]float64{0.9, 0.9, 0.9},
		nil)
	if err != nil {
		tst.Fatal("Error building sub-result:", err)
	}
	m := &result.MultiRunResult{
		Params: []result.SimParams{{
			Cases:      1,
			K:          3,
			NTotal:     100,
			NSamples:   [2]int{2, 3},
			BTrue:      []float64{1, 1, 1},
			WTrue:      [][]float64{{0, 0, 1}},
			NumResults: 1000,
		}},
		Results: map[string]map[int]*result.SubResult{"scdc": {0: sub}},
	}
	if err := m.Save(filepath.Join(dir, "result_0")); err != nil {
		tst.Fatal("Error saving fixture:", err)
	}

	_, _, agg, err := PrepareMultiModel(dir, "result_", 0.5, false)
	if err != nil {
		tst.Fatal("Error preparing:", err)
	}
	tp, err := agg.Num("tp")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	fp, _ := agg.Num("fp")
	if tp[0] != 1 || fp[0] != 2 {
		tst.Error("Wrong multi-model counts:", tp[0], fp[0])
	}

	// A multi-model directory cannot be prepared as single-model runs.
	if _, _, _, err := Prepare(dir, "result_", 0.5, false); err == nil {
		tst.Error("Single-model prepare over multi-model files should fail")
	}
}

func TestPrepareScoresPipeline(tst *testing.T) {
	dir := tst.TempDir()
	saveRun(tst, fixtureRun(tst, [2]int{2, 3}), dir, "result_0")
	_, _, agg, err := Prepare(dir, "result_", 0.5, false)
	if err != nil {
		tst.Fatal("Error preparing:", err)
	}
	scored, err := Scores(agg)
	if err != nil {
		tst.Fatal("Error scoring:", err)
	}
	tpr, err := scored.Num("tpr")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	tnr, _ := scored.Num("tnr")
	// tp=1 fn=0 -> tpr=1; tn=1 fp=1 -> tnr=0.5
	if tpr[0] != 1 || math.Abs(tnr[0]-0.5) > 1e-12 {
		tst.Error("Wrong pipeline rates:", tpr[0], tnr[0])
	}
}
