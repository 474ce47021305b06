package result

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testIORun(tst *testing.T) *RunResult {
	sub, err := NewSubResult(
		[]float64{1.5, 2.5, 3.5},
		[]float64{2.0, math.NaN(), 4.0},
		[]float64{0.9, 0.6, 0.8},
		mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	if err != nil {
		tst.Fatal("Error building sub-result:", err)
	}
	sub.Draws = mat.NewDense(2, 3, []float64{9, 8, 7, 6, 5, 4})
	return &RunResult{
		Params:  []SimParams{testParams()},
		Results: map[int]*SubResult{0: sub},
	}
}

func TestRoundTrip(tst *testing.T) {
	r := testIORun(tst)
	fn := filepath.Join(tst.TempDir(), "result_0")
	if err := r.Save(fn); err != nil {
		tst.Fatal("Error saving:", err)
	}
	back, err := LoadRun(fn)
	if err != nil {
		tst.Fatal("Error loading:", err)
	}
	if len(back.Params) != 1 || back.Params[0].K != 3 {
		tst.Error("Parameters lost:", back.Params)
	}
	if back.Params[0].SamplesKey() != "[2 3]" {
		tst.Error("Wrong group sizes:", back.Params[0].NSamples)
	}
	sub := back.Results[0]
	if sub == nil {
		tst.Fatal("Sub-result lost")
	}
	mnz, err := sub.Params.Num(ColMeanNonzero)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// NaN must survive the round trip, it encodes a missing sparsity
	// decomposition.
	if mnz[0] != 2.0 || !math.IsNaN(mnz[1]) {
		tst.Error("Conditional means lost:", mnz)
	}
	if sub.Y == nil || sub.Y.At(1, 2) != 6 {
		tst.Error("Observed counts lost")
	}
	if sub.Draws == nil || sub.Draws.At(0, 0) != 9 {
		tst.Error("Raw draws lost")
	}
}

func TestRoundTripFinalized(tst *testing.T) {
	r := testIORun(tst)
	if err := r.Finalize(0.5); err != nil {
		tst.Fatal("Error finalizing:", err)
	}
	var buf bytes.Buffer
	if err := r.Write(&buf); err != nil {
		tst.Fatal("Error writing:", err)
	}
	back, err := ReadRun(&buf)
	if err != nil {
		tst.Fatal("Error reading:", err)
	}
	if !back.Results[0].Params.Has(ColFinal) {
		tst.Error("final_parameter column lost")
	}
}

func TestRoundTripMulti(tst *testing.T) {
	sub, err := NewSubResult(
		[]float64{1},
		[]float64{2},
		[]float64{0.9},
		nil)
	if err != nil {
		tst.Fatal("Error building sub-result:", err)
	}
	m := &MultiRunResult{
		Params:  []SimParams{testParams()},
		Results: map[string]map[int]*SubResult{"scdc": {0: sub}},
	}
	fn := filepath.Join(tst.TempDir(), "result_multi")
	if err := m.Save(fn); err != nil {
		tst.Fatal("Error saving:", err)
	}
	back, err := LoadMulti(fn)
	if err != nil {
		tst.Fatal("Error loading:", err)
	}
	if back.Results["scdc"][0] == nil {
		tst.Error("Condition lost")
	}

	// A multi-model file is not a single-model file.
	if _, err := LoadRun(fn); err == nil {
		tst.Error("Loading a multi-model file as a run should fail")
	}
}

func TestLegacyKinds(tst *testing.T) {
	r := testIORun(tst)
	rw, err := runToWire(r)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	var buf bytes.Buffer
	err = writeEnvelope(&buf, formatLegacy,
		&envelope{Kind: "multi_parameter_sampling.MultiParamSimulation", Run: rw})
	if err != nil {
		tst.Fatal("Error writing legacy file:", err)
	}
	back, err := ReadRun(&buf)
	if err != nil {
		tst.Fatal("Error migrating legacy file:", err)
	}
	if len(back.Params) != 1 {
		tst.Error("Legacy parameters lost")
	}

	buf.Reset()
	err = writeEnvelope(&buf, formatLegacy,
		&envelope{Kind: "model.something.Else", Run: rw})
	if err != nil {
		tst.Fatal("Error writing:", err)
	}
	if _, err := ReadRun(&buf); err == nil {
		tst.Error("Unknown legacy kind should fail")
	}
}

func TestBadFiles(tst *testing.T) {
	r := testIORun(tst)
	rw, err := runToWire(r)
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	// unsupported version
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, 9, &envelope{Kind: KindRun, Run: rw}); err != nil {
		tst.Fatal("Error writing:", err)
	}
	if _, err := ReadRun(&buf); err == nil {
		tst.Error("Unsupported version should fail")
	}

	// bad magic
	if _, err := ReadRun(bytes.NewReader([]byte("XXXX\x02junk"))); err == nil {
		tst.Error("Bad magic should fail")
	}

	// truncated header
	if _, err := ReadRun(bytes.NewReader([]byte("CB"))); err == nil {
		tst.Error("Truncated file should fail")
	}

	// corrupt payload
	if _, err := ReadRun(bytes.NewReader([]byte("CBRS\x02garbage"))); err == nil {
		tst.Error("Corrupt payload should fail")
	}

	fn := filepath.Join(tst.TempDir(), "missing")
	if _, err := LoadRun(fn); err == nil {
		tst.Error("Missing file should fail")
	}
	if err := os.WriteFile(fn, []byte("CBRS"), 0666); err != nil {
		tst.Fatal("Error: ", err)
	}
	if _, err := LoadRun(fn); err == nil {
		tst.Error("Short file should fail")
	}
}
