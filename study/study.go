// Package study aggregates many serialized runs of a compositional MCMC
// model into one table: it scans a results directory, recomputes point
// estimates and discovery rates per run, concatenates the per-run parameter
// rows and sums the confusion counts over identical simulation-parameter
// tuples.
package study

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/op/go-logging"

	"compbench/result"
	"compbench/table"
)

var log = logging.MustGetLogger("study")

// rateFunc computes the per-run parameter/count table from a loaded and
// finalized run.
type rateFunc func(*result.RunResult) (*table.Table, error)

// matchFiles lists the entries of path whose name contains identifier.
func matchFiles(path, identifier string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), identifier) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	return files, nil
}

// aggregate stringifies the simulation parameter columns of the concatenated
// table and sums all counts over identical parameter tuples.
func aggregate(tables []*table.Table) (all, agg *table.Table, err error) {
	all, err = table.Concat(tables...)
	if err != nil {
		return nil, nil, err
	}
	if err = all.Stringify(result.SimParamCols...); err != nil {
		return nil, nil, err
	}
	agg, err = all.GroupSum(result.SimParamCols...)
	if err != nil {
		return nil, nil, err
	}
	return all, agg, nil
}

func prepare(path, identifier string, threshold float64, keep bool, rates rateFunc) ([]*result.RunResult, *table.Table, *table.Table, error) {
	files, err := matchFiles(path, identifier)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Noticef("Calculating discovery rates for %d files", len(files))

	var runs []*result.RunResult
	var tables []*table.Table
	for i, f := range files {
		log.Infof("Preparing %s (%d/%d)", f, i+1, len(files))
		r, err := result.LoadRun(f)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := r.Finalize(threshold); err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %v", f, err)
		}
		t, err := rates(r)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %v", f, err)
		}
		if !keep {
			// Raw chains are the memory-expensive part.
			r.DropChains()
		}
		runs = append(runs, r)
		tables = append(tables, t)
	}

	all, agg, err := aggregate(tables)
	if err != nil {
		return nil, nil, nil, err
	}
	return runs, all, agg, nil
}

// Prepare scans a directory of serialized runs, selecting the files whose
// name contains identifier, finalizes every sub-result with the given
// spike-and-slab threshold and computes whole-run discovery rates. It returns
// the loaded runs (with raw chains dropped unless keep is set), the
// concatenated per-run table and the table aggregated over identical
// simulation parameters. One unreadable file aborts the whole batch.
func Prepare(path, identifier string, threshold float64, keep bool) ([]*result.RunResult, *table.Table, *table.Table, error) {
	return prepare(path, identifier, threshold, keep, (*result.RunResult).DiscoveryRates)
}

// PreparePerType is Prepare with discovery rates computed separately for each
// cell type (correct_<i>/false_<i> columns).
func PreparePerType(path, identifier string, threshold float64, keep bool) ([]*result.RunResult, *table.Table, *table.Table, error) {
	return prepare(path, identifier, threshold, keep, (*result.RunResult).DiscoveryRatesPerType)
}

// PrepareMultiModel is Prepare for runs fitted under several model
// conditions; finalization descends one extra nesting level and skips
// conditions without a sparsity decomposition.
func PrepareMultiModel(path, identifier string, threshold float64, keep bool) ([]*result.MultiRunResult, *table.Table, *table.Table, error) {
	files, err := matchFiles(path, identifier)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Noticef("Calculating discovery rates for %d files", len(files))

	var runs []*result.MultiRunResult
	var tables []*table.Table
	for i, f := range files {
		log.Infof("Preparing %s (%d/%d)", f, i+1, len(files))
		m, err := result.LoadMulti(f)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := m.Finalize(threshold); err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %v", f, err)
		}
		t, err := m.DiscoveryRates()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s: %v", f, err)
		}
		if !keep {
			m.DropChains()
		}
		runs = append(runs, m)
		tables = append(tables, t)
	}

	all, agg, err := aggregate(tables)
	if err != nil {
		return nil, nil, nil, err
	}
	return runs, all, agg, nil
}
