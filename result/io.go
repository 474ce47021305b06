package result

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Result files carry a 4-byte magic, a format version byte and a gob payload.
// Version 1 files recorded the producer kind under its legacy name; the
// loader migrates those kinds at load time instead of rewriting type
// resolution. Version 2 is the current format.
const (
	fileMagic     = "CBRS"
	formatLegacy  = 1
	formatCurrent = 2
)

// Canonical result kinds.
const (
	KindRun   = "study.Run"
	KindMulti = "study.MultiRun"
)

// legacyKinds maps the four kind names recorded by older writers to the
// canonical kinds.
var legacyKinds = map[string]string{
	"multi_parameter_sampling.MultiParamSimulation":        KindRun,
	"result_classes.MCMCResult":                            KindRun,
	"compositional_analysis_generation_toolbox.Simulation": KindRun,
	"final_models.MultiParamSimulationMultiModel":          KindMulti,
}

// Wire form of the gob payload. Matrices are flattened because mat.Dense has
// no stable gob encoding; the posterior summary table is stored as its
// columns.
type subWire struct {
	Mean          []float64
	MeanNonzero   []float64
	InclusionProb []float64
	Final         []float64
	HasNonzero    bool
	HasFinal      bool
	YRows, YCols  int
	Y             []float64
	DrawRows      int
	DrawCols      int
	Draws         []float64
}

type envelope struct {
	Kind  string
	Run   *runWire
	Multi *multiWire
}

type runWire struct {
	Params  []SimParams
	Results map[int]*subWire
}

type multiWire struct {
	Params  []SimParams
	Results map[string]map[int]*subWire
}

func subToWire(sub *SubResult) (*subWire, error) {
	w := &subWire{}
	var err error
	if w.Mean, err = sub.Params.Num(ColMean); err != nil {
		return nil, err
	}
	if sub.Params.Has(ColMeanNonzero) {
		w.HasNonzero = true
		if w.MeanNonzero, err = sub.Params.Num(ColMeanNonzero); err != nil {
			return nil, err
		}
	}
	if w.InclusionProb, err = sub.Params.Num(ColInclusionProb); err != nil {
		return nil, err
	}
	if sub.Params.Has(ColFinal) {
		w.HasFinal = true
		if w.Final, err = sub.Params.Num(ColFinal); err != nil {
			return nil, err
		}
	}
	if sub.Y != nil {
		w.YRows, w.YCols = sub.Y.Dims()
		w.Y = append([]float64(nil), sub.Y.RawMatrix().Data...)
	}
	if sub.Draws != nil {
		w.DrawRows, w.DrawCols = sub.Draws.Dims()
		w.Draws = append([]float64(nil), sub.Draws.RawMatrix().Data...)
	}
	return w, nil
}

func subFromWire(w *subWire) (*SubResult, error) {
	mnz := w.MeanNonzero
	var sub *SubResult
	var err error
	if w.HasNonzero {
		if sub, err = NewSubResult(w.Mean, mnz, w.InclusionProb, nil); err != nil {
			return nil, err
		}
	} else {
		// No sparsity decomposition recorded at all (multi-model
		// conditions without variable selection).
		sub = &SubResult{Params: newPlainParams(w.Mean, w.InclusionProb)}
	}
	if w.HasFinal {
		if err := sub.Params.SetNum(ColFinal, w.Final); err != nil {
			return nil, err
		}
	}
	if w.YRows > 0 {
		sub.Y = mat.NewDense(w.YRows, w.YCols, w.Y)
	}
	if w.DrawRows > 0 {
		sub.Draws = mat.NewDense(w.DrawRows, w.DrawCols, w.Draws)
	}
	return sub, nil
}

func runToWire(r *RunResult) (*runWire, error) {
	w := &runWire{Params: r.Params, Results: make(map[int]*subWire, len(r.Results))}
	for i, sub := range r.Results {
		sw, err := subToWire(sub)
		if err != nil {
			return nil, fmt.Errorf("result: sub-run %d: %v", i, err)
		}
		w.Results[i] = sw
	}
	return w, nil
}

func runFromWire(w *runWire) (*RunResult, error) {
	r := &RunResult{Params: w.Params, Results: make(map[int]*SubResult, len(w.Results))}
	for i, sw := range w.Results {
		sub, err := subFromWire(sw)
		if err != nil {
			return nil, fmt.Errorf("result: sub-run %d: %v", i, err)
		}
		r.Results[i] = sub
	}
	return r, nil
}

func multiToWire(m *MultiRunResult) (*multiWire, error) {
	w := &multiWire{Params: m.Params, Results: make(map[string]map[int]*subWire, len(m.Results))}
	for cond, subs := range m.Results {
		w.Results[cond] = make(map[int]*subWire, len(subs))
		for i, sub := range subs {
			sw, err := subToWire(sub)
			if err != nil {
				return nil, fmt.Errorf("result: condition %q sub-run %d: %v", cond, i, err)
			}
			w.Results[cond][i] = sw
		}
	}
	return w, nil
}

func multiFromWire(w *multiWire) (*MultiRunResult, error) {
	m := &MultiRunResult{Params: w.Params, Results: make(map[string]map[int]*SubResult, len(w.Results))}
	for cond, subs := range w.Results {
		m.Results[cond] = make(map[int]*SubResult, len(subs))
		for i, sw := range subs {
			sub, err := subFromWire(sw)
			if err != nil {
				return nil, fmt.Errorf("result: condition %q sub-run %d: %v", cond, i, err)
			}
			m.Results[cond][i] = sub
		}
	}
	return m, nil
}

func writeEnvelope(w io.Writer, version byte, env *envelope) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{version}); err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(env)
}

func readEnvelope(r io.Reader) (*envelope, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("result: reading header: %v", err)
	}
	if !bytes.Equal(hdr[:4], []byte(fileMagic)) {
		return nil, fmt.Errorf("result: not a result file (bad magic %q)", hdr[:4])
	}
	version := hdr[4]
	env := &envelope{}
	if err := gob.NewDecoder(r).Decode(env); err != nil {
		return nil, fmt.Errorf("result: decoding payload: %v", err)
	}
	switch version {
	case formatLegacy:
		kind, ok := legacyKinds[env.Kind]
		if !ok {
			return nil, fmt.Errorf("result: unknown legacy result kind %q", env.Kind)
		}
		env.Kind = kind
	case formatCurrent:
		if env.Kind != KindRun && env.Kind != KindMulti {
			return nil, fmt.Errorf("result: unknown result kind %q", env.Kind)
		}
	default:
		return nil, fmt.Errorf("result: unsupported format version %d", version)
	}
	return env, nil
}

// Write serializes the run in the current format.
func (r *RunResult) Write(w io.Writer) error {
	rw, err := runToWire(r)
	if err != nil {
		return err
	}
	return writeEnvelope(w, formatCurrent, &envelope{Kind: KindRun, Run: rw})
}

// Save writes the run to a file.
func (r *RunResult) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.Write(f)
}

// Write serializes the multi-model run in the current format.
func (m *MultiRunResult) Write(w io.Writer) error {
	mw, err := multiToWire(m)
	if err != nil {
		return err
	}
	return writeEnvelope(w, formatCurrent, &envelope{Kind: KindMulti, Multi: mw})
}

// Save writes the multi-model run to a file.
func (m *MultiRunResult) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Write(f)
}

// ReadRun deserializes a single-model run, migrating legacy files.
func ReadRun(r io.Reader) (*RunResult, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	if env.Kind != KindRun || env.Run == nil {
		return nil, fmt.Errorf("result: expected a %s result, got %q", KindRun, env.Kind)
	}
	return runFromWire(env.Run)
}

// ReadMulti deserializes a multi-model run, migrating legacy files.
func ReadMulti(r io.Reader) (*MultiRunResult, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	if env.Kind != KindMulti || env.Multi == nil {
		return nil, fmt.Errorf("result: expected a %s result, got %q", KindMulti, env.Kind)
	}
	return multiFromWire(env.Multi)
}

// LoadRun reads a single-model run from a file.
func LoadRun(path string) (*RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := ReadRun(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return r, nil
}

// LoadMulti reads a multi-model run from a file.
func LoadMulti(path string) (*MultiRunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadMulti(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return m, nil
}
