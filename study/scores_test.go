package study

import (
	"math"
	"testing"

	"compbench/table"
)

func countTable(tst *testing.T, tp, tn, fp, fn []float64) *table.Table {
	t := table.New()
	for name, vals := range map[string][]float64{"tp": tp, "tn": tn, "fp": fp, "fn": fn} {
		if err := t.AddNum(name, vals); err != nil {
			tst.Fatal("Error building table:", err)
		}
	}
	return t
}

func column(tst *testing.T, t *table.Table, name string) []float64 {
	vals, err := t.Num(name)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return vals
}

func TestScores(tst *testing.T) {
	t := countTable(tst, []float64{8}, []float64{7}, []float64{3}, []float64{2})
	s, err := Scores(t)
	if err != nil {
		tst.Fatal("Error scoring:", err)
	}
	if v := column(tst, s, "tpr")[0]; v != 0.8 {
		tst.Error("Wrong tpr:", v)
	}
	if v := column(tst, s, "tnr")[0]; v != 0.7 {
		tst.Error("Wrong tnr:", v)
	}
	if v := column(tst, s, "precision")[0]; math.Abs(v-8.0/11) > 1e-12 {
		tst.Error("Wrong precision:", v)
	}
	if v := column(tst, s, "accuracy")[0]; v != 0.75 {
		tst.Error("Wrong accuracy:", v)
	}
	if v := column(tst, s, "youden")[0]; math.Abs(v-0.5) > 1e-12 {
		tst.Error("Wrong youden index:", v)
	}
	f1 := column(tst, s, "f1_score")[0]
	precision := 8.0 / 11
	want := 2 * 0.8 * precision / (0.8 + precision)
	if math.Abs(f1-want) > 1e-12 {
		tst.Error("Wrong f1 score:", f1)
	}
	mcc := column(tst, s, "mcc")[0]
	wantMCC := (8*7 - 3*2) / math.Sqrt(11*10*10*9)
	if math.Abs(mcc-wantMCC) > 1e-12 {
		tst.Error("Wrong mcc:", mcc)
	}
}

func TestScoresZeroDenominators(tst *testing.T) {
	// tp+fn=0: every rate with a zero denominator maps to 0, never NaN.
	t := countTable(tst, []float64{0}, []float64{5}, []float64{5}, []float64{0})
	s, err := Scores(t)
	if err != nil {
		tst.Fatal("Error scoring:", err)
	}
	if v := column(tst, s, "tpr")[0]; v != 0 {
		tst.Error("tpr should be 0 for tp+fn=0, got", v)
	}
	if v := column(tst, s, "accuracy")[0]; v != 0.5 {
		tst.Error("Wrong accuracy:", v)
	}
	if v := column(tst, s, "precision")[0]; v != 0 {
		tst.Error("precision should be 0 for tp=0, got", v)
	}
	if v := column(tst, s, "mcc")[0]; v != 0 {
		tst.Error("mcc should be 0 for a zero denominator, got", v)
	}
}

func TestScoresF1ZeroOverZero(tst *testing.T) {
	// tpr and precision both 0: the f1 division 0/0 is pinned to 0.
	t := countTable(tst, []float64{0}, []float64{0}, []float64{0}, []float64{0})
	s, err := Scores(t)
	if err != nil {
		tst.Fatal("Error scoring:", err)
	}
	for _, name := range ScoreCols {
		v := column(tst, s, name)[0]
		if name == "youden" {
			if v != -1 {
				tst.Error("Wrong youden index for all-zero counts:", v)
			}
			continue
		}
		if v != 0 {
			tst.Error(name, "should be 0 for all-zero counts, got", v)
		}
	}
}

func TestScoresDoesNotMutate(tst *testing.T) {
	t := countTable(tst, []float64{1}, []float64{1}, []float64{1}, []float64{1})
	if _, err := Scores(t); err != nil {
		tst.Fatal("Error scoring:", err)
	}
	if t.Has("tpr") {
		tst.Error("Scores should not modify its input")
	}
	if _, err := Scores(table.New()); err == nil {
		tst.Error("Scoring a table without counts should fail")
	}
}
