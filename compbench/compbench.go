/*

Compbench aggregates and visualizes the results of running a compositional
MCMC model over many simulation parameter combinations. It scans a directory
of serialized run results, recomputes point estimates from the spike-and-slab
posteriors, sums discovery counts over identical parameter tuples, derives
confusion-matrix summary statistics and renders heatmap/boxplot comparisons.

The basic usage looks like this:

	compbench -aggout scores.csv results/

, this aggregates every file whose name contains "result_" and writes the
scored table.

Heatmaps and boxplots are written with the plot flags:

	compbench -heatmap rates.png -dim1 w_true -dim2 n_total results/

To see all the options run:

	compbench -h

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"compbench/cache"
	"compbench/result"
	"compbench/study"
	"compbench/table"
	"compbench/visual"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("compbench")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("compbench", "multi-parameter study analysis for compositional MCMC models").Version(version)

	// input
	resultsDir = app.Arg("results", "directory with serialized run results").Required().ExistingDir()
	identifier = app.Flag("id", "substring identifying the result files to analyze").Default("result_").String()

	// analysis parameters
	threshold = app.Flag("threshold", "spike-and-slab inclusion probability threshold").
			Default("0.5").Float64()
	keep    = app.Flag("keep", "keep raw MCMC chains in memory (very memory consuming)").Bool()
	perType = app.Flag("pertype", "compute discovery rates separately for each cell type").Bool()
	multi   = app.Flag("multi", "result files hold several model conditions per run").Bool()

	// table output
	rawF = app.Flag("rawout", "write the concatenated per-run table to a CSV file").String()
	aggF = app.Flag("aggout", "write the aggregated (and, if applicable, scored) table to a CSV file").String()

	// plots
	heatmapF = app.Flag("heatmap", "write a TPR/TNR heatmap to an image file").String()
	dim1     = app.Flag("dim1", "first heatmap parameter dimension").Default("w_true").String()
	dim2     = app.Flag("dim2", "second heatmap parameter dimension (single-column heatmap if empty)").String()
	casesF   = app.Flag("cases", "write cases-vs-controls heatmaps and count boxplots to an image file").String()
	typesF   = app.Flag("typeplots", "write per-cell-type cases-vs-controls panels to an image file (requires -pertype)").String()
	eachF    = app.Flag("eachtype", "write one cases-vs-controls image per cell type (requires -pertype)").String()
	wJSON    = app.Flag("w", "ground-truth effect matrix selecting the runs to plot (JSON, e.g. [[0,0,1,0,0]])").String()
	suptitle = app.Flag("suptitle", "header prepended to the plot titles").String()

	// caching
	cacheFN = app.Flag("cache", "bolt database file for caching aggregation results").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// mode returns the preparation mode string.
func mode() string {
	switch {
	case *multi:
		return "multi"
	case *perType:
		return "pertype"
	}
	return "run"
}

// wantRuns is true if any requested plot needs the loaded run objects.
func wantRuns() bool {
	return *casesF != "" || *typesF != "" || *eachF != ""
}

// writeCSV writes a table to a file.
func writeCSV(t *table.Table, fn string) {
	f, err := os.Create(fn)
	if err != nil {
		log.Fatal("Error creating table file:", err)
	}
	defer f.Close()
	if err := t.WriteCSV(f); err != nil {
		log.Fatal("Error writing table:", err)
	}
	log.Infof("Wrote %d rows to %s", t.NRows(), fn)
}

func run(db *bolt.DB) (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{Mode: mode()}

	if *multi && (*perType || wantRuns()) {
		log.Fatal("Multi-model results support only whole-run rates and the -heatmap plot")
	}
	if (*typesF != "" || *eachF != "") && !*perType {
		log.Fatal("Per-cell-type plots need -pertype rates")
	}
	if *casesF != "" && *perType {
		log.Fatal("-cases needs whole-run rates, not -pertype")
	}

	var wTrue [][]float64
	if wantRuns() {
		if *wJSON == "" {
			log.Fatal("Plot flags -cases, -typeplots and -eachtype need a ground truth, e.g. -w [[0,0,1,0,0]]")
		}
		if err := json.Unmarshal([]byte(*wJSON), &wTrue); err != nil {
			log.Fatal("Error parsing -w:", err)
		}
		if len(wTrue) == 0 {
			log.Fatal("Empty ground-truth effect matrix")
		}
	}

	cio := cache.NewIO(db)
	key := cache.Key(*resultsDir, *identifier, *threshold, mode())

	var runs []*result.RunResult
	var all, agg *table.Table

	// The cache can only serve table-level requests; plots over raw counts
	// need the run objects.
	if !wantRuns() && *rawF == "" {
		entry, err := cio.Get(key)
		if err != nil {
			log.Error("Error reading cache:", err)
		} else if entry != nil {
			agg = entry.Aggregated
			summary.CacheHit = true
		}
	}

	if agg == nil {
		var err error
		switch {
		case *multi:
			_, all, agg, err = study.PrepareMultiModel(*resultsDir, *identifier, *threshold, *keep)
		case *perType:
			runs, all, agg, err = study.PreparePerType(*resultsDir, *identifier, *threshold, *keep)
		default:
			runs, all, agg, err = study.Prepare(*resultsDir, *identifier, *threshold, *keep)
		}
		if err != nil {
			log.Fatal(err)
		}
		summary.Files = all.NRows()
		if err := cio.Put(key, &cache.Entry{
			Identifier: *identifier,
			Threshold:  *threshold,
			Mode:       mode(),
			Aggregated: agg,
		}); err != nil {
			log.Error("Error writing cache:", err)
		}
	}
	summary.Groups = agg.NRows()
	log.Noticef("%d distinct parameter combinations", agg.NRows())

	// Per-type tables have no tp/tn/fp/fn columns to score.
	scored := agg
	if !*perType {
		var err error
		if scored, err = study.Scores(agg); err != nil {
			log.Fatal(err)
		}
	}

	if *rawF != "" {
		writeCSV(all, *rawF)
	}
	if *aggF != "" {
		writeCSV(scored, *aggF)
	}

	if *heatmapF != "" {
		if err := visual.DiscoveryHeatmap(scored, *dim1, *dim2, *heatmapF); err != nil {
			log.Fatal("Error plotting heatmap:", err)
		}
	}
	if *casesF != "" {
		if err := visual.CasesControls(scored, runs, wTrue, *casesF, *suptitle); err != nil {
			log.Fatal("Error plotting cases vs. controls:", err)
		}
	}
	if *typesF != "" || *eachF != "" {
		if len(runs) == 0 || len(runs[0].Params) == 0 {
			log.Fatal("No runs loaded for per-type plots")
		}
		k := runs[0].Params[0].K
		if *typesF != "" {
			if err := visual.CasesControlsPerType(k, scored, runs, wTrue, *typesF, *suptitle); err != nil {
				log.Fatal("Error plotting per-type panels:", err)
			}
		}
		if *eachF != "" {
			if err := visual.CasesControlsEachType(k, scored, runs, wTrue, *eachF, *suptitle); err != nil {
				log.Fatal("Error plotting per-type images:", err)
			}
		}
	}

	endTime := time.Now()

	deltaT := endTime.Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "compbench")
	logging.SetLevel(level, "study")
	logging.SetLevel(level, "visual")
	logging.SetLevel(level, "cache")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	var db *bolt.DB
	if *cacheFN != "" {
		db, err = bolt.Open(*cacheFN, 0666, nil)
		if err != nil {
			log.Fatal("Error opening cache database:", err)
		}
		defer db.Close()
	}

	summary := run(db)
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
