package study

import (
	"math"

	"compbench/table"
)

// ScoreCols lists the summary statistic columns added by Scores.
var ScoreCols = []string{"tpr", "tnr", "precision", "accuracy", "youden", "f1_score", "mcc"}

// safeDiv returns a/b, or 0 for a zero denominator.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Scores derives the extended summary statistics (TPR, TNR, precision,
// accuracy, Youden index, F1 score and MCC) from the aggregated confusion
// counts and returns a new table with them appended. Degenerate counts with a
// zero denominator yield 0, never NaN. The input table is not modified.
func Scores(agg *table.Table) (*table.Table, error) {
	tp, err := agg.Num("tp")
	if err != nil {
		return nil, err
	}
	tn, err := agg.Num("tn")
	if err != nil {
		return nil, err
	}
	fp, err := agg.Num("fp")
	if err != nil {
		return nil, err
	}
	fn, err := agg.Num("fn")
	if err != nil {
		return nil, err
	}

	n := len(tp)
	tpr := make([]float64, n)
	tnr := make([]float64, n)
	precision := make([]float64, n)
	accuracy := make([]float64, n)
	youden := make([]float64, n)
	f1 := make([]float64, n)
	mcc := make([]float64, n)
	for i := 0; i < n; i++ {
		tpr[i] = safeDiv(tp[i], tp[i]+fn[i])
		tnr[i] = safeDiv(tn[i], tn[i]+fp[i])
		precision[i] = safeDiv(tp[i], tp[i]+fp[i])
		accuracy[i] = safeDiv(tp[i]+tn[i], tp[i]+tn[i]+fp[i]+fn[i])
		youden[i] = tpr[i] + tnr[i] - 1
		f1[i] = 2 * safeDiv(tpr[i]*precision[i], tpr[i]+precision[i])
		mcc[i] = safeDiv(tp[i]*tn[i]-fp[i]*fn[i],
			math.Sqrt((tp[i]+fp[i])*(tp[i]+fn[i])*(tn[i]+fp[i])*(tn[i]+fn[i])))
	}

	out := agg.Clone()
	out.AddNum("tpr", tpr)
	out.AddNum("tnr", tnr)
	out.AddNum("precision", precision)
	out.AddNum("accuracy", accuracy)
	out.AddNum("youden", youden)
	out.AddNum("f1_score", f1)
	out.AddNum("mcc", mcc)
	return out, nil
}
