// Package result defines the objects produced by repeated runs of a
// compositional MCMC model: per-run simulation parameters, per-coefficient
// posterior summaries and observed count matrices. It recomputes point
// estimates from spike-and-slab posteriors and classifies them against the
// ground truth.
package result

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"compbench/table"
)

// Posterior summary column names.
const (
	ColMean          = "mean"
	ColMeanNonzero   = "mean_nonzero"
	ColInclusionProb = "inclusion_prob"
	ColFinal         = "final_parameter"
)

// DefaultThreshold is the default spike-and-slab inclusion threshold.
const DefaultThreshold = 0.5

// SimParamCols lists the simulation parameter columns, in table order. Runs
// are aggregated over the exact tuple of these columns.
var SimParamCols = []string{"cases", "K", "n_total", "n_samples", "b_true", "w_true", "num_results"}

// SimParams holds the simulation parameters of one sub-run.
type SimParams struct {
	// Cases is the number of covariates.
	Cases int
	// K is the number of cell types.
	K int
	// NTotal is the total cell count per sample.
	NTotal int
	// NSamples holds the control and case group sizes.
	NSamples [2]int
	// BTrue is the true intercept vector.
	BTrue []float64
	// WTrue holds the true effects, one row per covariate, one column per
	// cell type.
	WTrue [][]float64
	// NumResults is the number of MCMC draws.
	NumResults int
}

// Effects returns the ground-truth effect vector as the row-major flattening
// of WTrue. Coefficient j belongs to cell type j mod K.
func (p *SimParams) Effects() []float64 {
	var w []float64
	for _, row := range p.WTrue {
		w = append(w, row...)
	}
	return w
}

// SamplesKey returns the canonical string form of NSamples, as used in
// stringified parameter columns.
func (p *SimParams) SamplesKey() string {
	return fmt.Sprint(p.NSamples)
}

// EffectsKey returns the canonical string form of WTrue.
func (p *SimParams) EffectsKey() string {
	return fmt.Sprint(p.WTrue)
}

// SubResult is one fitted sub-run: per-coefficient posterior summaries, the
// observed count matrix and, optionally, the raw chain.
type SubResult struct {
	// Params holds one row per coefficient with the columns mean,
	// mean_nonzero and inclusion_prob; Finalize adds final_parameter.
	// A missing sparsity decomposition is signalled by NaN in mean_nonzero.
	Params *table.Table
	// Y is the observed count matrix, rows are samples (controls first),
	// columns are cell types.
	Y *mat.Dense
	// Draws is the raw MCMC chain (iterations x coefficients). It is the
	// memory-expensive part and can be dropped once rates are computed.
	Draws *mat.Dense
}

// NewSubResult builds a sub-result from posterior summary vectors.
func NewSubResult(mean, meanNonzero, inclusionProb []float64, y *mat.Dense) (*SubResult, error) {
	if len(meanNonzero) != len(mean) || len(inclusionProb) != len(mean) {
		return nil, fmt.Errorf("result: summary vectors disagree: %d/%d/%d",
			len(mean), len(meanNonzero), len(inclusionProb))
	}
	t := table.New()
	t.AddNum(ColMean, mean)
	t.AddNum(ColMeanNonzero, meanNonzero)
	t.AddNum(ColInclusionProb, inclusionProb)
	return &SubResult{Params: t, Y: y}, nil
}

// newPlainParams builds a summary table for a model without a sparsity
// decomposition.
func newPlainParams(mean, inclusionProb []float64) *table.Table {
	t := table.New()
	t.AddNum(ColMean, mean)
	t.AddNum(ColInclusionProb, inclusionProb)
	return t
}

// RunResult is one simulation run: a parameter row and a fitted sub-result
// per sub-run.
type RunResult struct {
	Params  []SimParams
	Results map[int]*SubResult
}

// MultiRunResult is a run fitted under several model conditions.
type MultiRunResult struct {
	Params  []SimParams
	Results map[string]map[int]*SubResult
}

// FinalParameters computes the point estimate for every coefficient: the
// posterior mean where mean_nonzero is NaN, mean_nonzero where the inclusion
// probability strictly exceeds the threshold, and 0 otherwise.
func FinalParameters(params *table.Table, threshold float64) ([]float64, error) {
	mean, err := params.Num(ColMean)
	if err != nil {
		return nil, err
	}
	mnz, err := params.Num(ColMeanNonzero)
	if err != nil {
		return nil, err
	}
	incl, err := params.Num(ColInclusionProb)
	if err != nil {
		return nil, err
	}
	final := make([]float64, len(mean))
	for i := range mean {
		switch {
		case math.IsNaN(mnz[i]):
			final[i] = mean[i]
		case incl[i] > threshold:
			final[i] = mnz[i]
		default:
			final[i] = 0
		}
	}
	return final, nil
}

// Finalize computes the final_parameter column for every sub-result.
func (r *RunResult) Finalize(threshold float64) error {
	for i, sub := range r.Results {
		final, err := FinalParameters(sub.Params, threshold)
		if err != nil {
			return fmt.Errorf("result: sub-run %d: %v", i, err)
		}
		if err := sub.Params.SetNum(ColFinal, final); err != nil {
			return fmt.Errorf("result: sub-run %d: %v", i, err)
		}
	}
	return nil
}

// Finalize computes the final_parameter column for every sub-result of every
// condition. Conditions without a sparsity decomposition (no mean_nonzero
// column) are left untouched.
func (m *MultiRunResult) Finalize(threshold float64) error {
	for cond, subs := range m.Results {
		for i, sub := range subs {
			if !sub.Params.Has(ColMeanNonzero) {
				continue
			}
			final, err := FinalParameters(sub.Params, threshold)
			if err != nil {
				return fmt.Errorf("result: condition %q sub-run %d: %v", cond, i, err)
			}
			if err := sub.Params.SetNum(ColFinal, final); err != nil {
				return fmt.Errorf("result: condition %q sub-run %d: %v", cond, i, err)
			}
		}
	}
	return nil
}

// DiscoveryCounts classifies finalized coefficients against the ground truth.
func DiscoveryCounts(truth, final []float64) (tp, tn, fp, fn int, err error) {
	if len(truth) != len(final) {
		return 0, 0, 0, 0, fmt.Errorf("result: %d truth values for %d coefficients",
			len(truth), len(final))
	}
	for i := range truth {
		switch {
		case truth[i] != 0 && final[i] != 0:
			tp++
		case truth[i] != 0:
			fn++
		case final[i] == 0:
			tn++
		default:
			fp++
		}
	}
	return tp, tn, fp, fn, nil
}

// paramTable builds the base parameter table: one row per sub-run, vector
// parameters already in their canonical string form.
func paramTable(params []SimParams) *table.Table {
	n := len(params)
	cases := make([]float64, n)
	k := make([]float64, n)
	nTotal := make([]float64, n)
	nSamples := make([]string, n)
	bTrue := make([]string, n)
	wTrue := make([]string, n)
	numResults := make([]float64, n)
	for i, p := range params {
		cases[i] = float64(p.Cases)
		k[i] = float64(p.K)
		nTotal[i] = float64(p.NTotal)
		nSamples[i] = p.SamplesKey()
		bTrue[i] = fmt.Sprint(p.BTrue)
		wTrue[i] = p.EffectsKey()
		numResults[i] = float64(p.NumResults)
	}
	t := table.New()
	t.AddNum("cases", cases)
	t.AddNum("K", k)
	t.AddNum("n_total", nTotal)
	t.AddStr("n_samples", nSamples)
	t.AddStr("b_true", bTrue)
	t.AddStr("w_true", wTrue)
	t.AddNum("num_results", numResults)
	return t
}

// finals returns the final_parameter column of sub-run i, or an error if the
// run was not finalized.
func finals(sub *SubResult, i int) ([]float64, error) {
	final, err := sub.Params.Num(ColFinal)
	if err != nil {
		return nil, fmt.Errorf("result: sub-run %d not finalized: %v", i, err)
	}
	return final, nil
}

// DiscoveryRates returns a new parameter table with tp, tn, fp and fn counts
// per sub-run. The run must be finalized first.
func (r *RunResult) DiscoveryRates() (*table.Table, error) {
	n := len(r.Params)
	tp := make([]float64, n)
	tn := make([]float64, n)
	fp := make([]float64, n)
	fn := make([]float64, n)
	for i := range r.Params {
		sub, ok := r.Results[i]
		if !ok {
			return nil, fmt.Errorf("result: no sub-result for sub-run %d", i)
		}
		final, err := finals(sub, i)
		if err != nil {
			return nil, err
		}
		a, b, c, d, err := DiscoveryCounts(r.Params[i].Effects(), final)
		if err != nil {
			return nil, fmt.Errorf("result: sub-run %d: %v", i, err)
		}
		tp[i], tn[i], fp[i], fn[i] = float64(a), float64(b), float64(c), float64(d)
	}
	t := paramTable(r.Params)
	t.AddNum("tp", tp)
	t.AddNum("tn", tn)
	t.AddNum("fp", fp)
	t.AddNum("fn", fn)
	return t, nil
}

// DiscoveryRatesPerType returns a new parameter table with correct_<i> and
// false_<i> counts per cell type. Rows with fewer cell types than the table
// maximum hold NaN in the extra columns.
func (r *RunResult) DiscoveryRatesPerType() (*table.Table, error) {
	n := len(r.Params)
	maxK := 0
	for _, p := range r.Params {
		if p.K > maxK {
			maxK = p.K
		}
	}
	correct := make([][]float64, maxK)
	wrong := make([][]float64, maxK)
	for k := 0; k < maxK; k++ {
		correct[k] = make([]float64, n)
		wrong[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			correct[k][i] = math.NaN()
			wrong[k][i] = math.NaN()
		}
	}
	for i, p := range r.Params {
		sub, ok := r.Results[i]
		if !ok {
			return nil, fmt.Errorf("result: no sub-result for sub-run %d", i)
		}
		final, err := finals(sub, i)
		if err != nil {
			return nil, err
		}
		truth := p.Effects()
		if len(truth) != len(final) {
			return nil, fmt.Errorf("result: sub-run %d: %d truth values for %d coefficients",
				i, len(truth), len(final))
		}
		for k := 0; k < p.K; k++ {
			correct[k][i] = 0
			wrong[k][i] = 0
		}
		for j := range truth {
			k := j % p.K
			if (truth[j] != 0) == (final[j] != 0) {
				correct[k][i]++
			} else {
				wrong[k][i]++
			}
		}
	}
	t := paramTable(r.Params)
	for k := 0; k < maxK; k++ {
		t.AddNum(fmt.Sprintf("correct_%d", k), correct[k])
		t.AddNum(fmt.Sprintf("false_%d", k), wrong[k])
	}
	return t, nil
}

// DiscoveryRates sums confusion counts over all finalized conditions of each
// sub-run.
func (m *MultiRunResult) DiscoveryRates() (*table.Table, error) {
	n := len(m.Params)
	tp := make([]float64, n)
	tn := make([]float64, n)
	fp := make([]float64, n)
	fn := make([]float64, n)
	for i := range m.Params {
		truth := m.Params[i].Effects()
		for cond, subs := range m.Results {
			sub, ok := subs[i]
			if !ok || !sub.Params.Has(ColFinal) {
				continue
			}
			final, _ := sub.Params.Num(ColFinal)
			a, b, c, d, err := DiscoveryCounts(truth, final)
			if err != nil {
				return nil, fmt.Errorf("result: condition %q sub-run %d: %v", cond, i, err)
			}
			tp[i] += float64(a)
			tn[i] += float64(b)
			fp[i] += float64(c)
			fn[i] += float64(d)
		}
	}
	t := paramTable(m.Params)
	t.AddNum("tp", tp)
	t.AddNum("tn", tn)
	t.AddNum("fp", fp)
	t.AddNum("fn", fn)
	return t, nil
}

// DropChains discards the raw MCMC draws to bound memory.
func (r *RunResult) DropChains() {
	for _, sub := range r.Results {
		sub.Draws = nil
	}
}

// DropChains discards the raw MCMC draws of every condition.
func (m *MultiRunResult) DropChains() {
	for _, subs := range m.Results {
		for _, sub := range subs {
			sub.Draws = nil
		}
	}
}
