package main

// RunSummary stores compbench run summary information.
type RunSummary struct {
	// Version stores the compbench version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Mode is the preparation mode (run, pertype or multi).
	Mode string `json:"mode"`
	// Files is the number of result files matching the identifier.
	Files int `json:"files"`
	// Groups is the number of distinct simulation-parameter combinations.
	Groups int `json:"groups"`
	// CacheHit is true if the aggregation was served from the cache.
	CacheHit bool `json:"cacheHit"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
