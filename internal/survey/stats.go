package survey

import "math"

// ComputeStats deriva taxas a partir das contagens.
// taxa_satisfacao = (verde + amarela) / respondidas * 100.
func ComputeStats(c Counts, kind Kind) Stats {
	st := Stats{
		Total:    c.Total,
		Answered: c.Answered,
		Green:    c.Green,
		Yellow:   c.Yellow,
		Red:      c.Red,
	}
	if c.Answered > 0 {
		st.SatisfactionRate = round2(float64(c.Green+c.Yellow) / float64(c.Answered) * 100)
		st.AverageScore = round2(float64(c.ScoreSum) / float64(c.Answered))
	}
	if c.Total > 0 {
		st.ResponseRate = round2(float64(c.Answered) / float64(c.Total) * 100)
	}
	if kind == KindFranchisee {
		st.Departments = &DepartmentAverages{
			Fiscal:   roundPtr(c.FiscalAvg),
			Personal: roundPtr(c.PersonalAvg),
			Account:  roundPtr(c.AccountAvg),
		}
	}
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}
