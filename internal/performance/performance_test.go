package performance

import (
	"testing"

	"PriceSentinel/internal/model"
)

func pos(status model.Status, realised *float64) model.Position {
	return model.Position{
		Symbol:      "ABC",
		EntryZone:   "100-110",
		Target:      "130",
		StopLoss:    "90",
		Status:      status,
		RealisedPct: realised,
	}
}

func TestLiveReturn(t *testing.T) {
	tests := []struct {
		name  string
		p     model.Position
		price *float64
		want  *float64
	}{
		{"hold above entry", pos(model.StatusHold, nil), model.Float(120), model.Float(14.29)},
		{"entry below mid", pos(model.StatusEntry, nil), model.Float(100), model.Float(-4.76)},
		{"no price yet", pos(model.StatusEntry, nil), nil, nil},
		{"exit uses frozen", pos(model.StatusExit, model.Float(-19.05)), model.Float(150), model.Float(-19.05)},
		{"exited uses frozen", pos(model.StatusExited, model.Float(23.81)), model.Float(50), model.Float(23.81)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			p.CurrentPrice = tt.price
			got := LiveReturn(p)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %v", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("expected %v, got %v", *tt.want, got)
			}
		})
	}
}

func TestLiveReturn_AverageEntryOverride(t *testing.T) {
	p := pos(model.StatusHold, nil)
	p.AverageEntry = model.Float(100)
	p.CurrentPrice = model.Float(120)
	if got := LiveReturn(p); got == nil || *got != 20 {
		t.Errorf("expected 20, got %v", got)
	}
}

func TestPotentialReturn(t *testing.T) {
	if got := PotentialReturn(pos(model.StatusEntry, nil)); got == nil || *got != 23.81 {
		t.Errorf("expected 23.81, got %v", got)
	}
	p := pos(model.StatusEntry, nil)
	p.Target = ""
	if got := PotentialReturn(p); got != nil {
		t.Errorf("expected nil without target, got %v", *got)
	}
}

func TestEnrich(t *testing.T) {
	p := pos(model.StatusHold, nil)
	p.CurrentPrice = model.Float(120)
	e := Enrich(p)
	if e.ReturnPct == nil || *e.ReturnPct != 14.29 || e.PotentialPct == nil || *e.PotentialPct != 23.81 {
		t.Errorf("unexpected enrichment %+v", e)
	}
	if e.Symbol != "ABC" {
		t.Error("expected embedded position fields")
	}
}

func TestCompute(t *testing.T) {
	positions := []model.Position{
		pos(model.StatusEntry, nil),
		pos(model.StatusHold, nil),
		pos(model.StatusExit, model.Float(20)),
		pos(model.StatusExited, model.Float(10)),
		pos(model.StatusExited, model.Float(-5)),
		pos(model.StatusExited, model.Float(0)),
	}
	s := Compute(positions)

	if s.TotalPositions != 6 || s.ActivePositions != 3 || s.ExitedPositions != 3 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.WinningCalls != 2 || s.LosingCalls != 2 {
		t.Errorf("expected 2 wins and 2 losses, got %d/%d", s.WinningCalls, s.LosingCalls)
	}
	if s.AccuracyRatio != 50 {
		t.Errorf("expected accuracy 50, got %v", s.AccuracyRatio)
	}
	if s.AvgWinningReturn != 15 || s.AvgLosingReturn != -2.5 {
		t.Errorf("unexpected averages %v / %v", s.AvgWinningReturn, s.AvgLosingReturn)
	}
	// (90 - 105) / 105 * 100
	if s.AvgDownside != -14.29 {
		t.Errorf("expected downside -14.29, got %v", s.AvgDownside)
	}
	if len(s.TopPerformers) != 4 || *s.TopPerformers[0].RealisedPct != 20 || *s.TopPerformers[3].RealisedPct != -5 {
		t.Errorf("unexpected top performers %+v", s.TopPerformers)
	}
}

func TestCompute_TopFiveAndEmpty(t *testing.T) {
	if s := Compute(nil); s.AccuracyRatio != 0 || s.TotalPositions != 0 || len(s.TopPerformers) != 0 {
		t.Errorf("expected zero stats, got %+v", s)
	}

	var positions []model.Position
	for i := 1; i <= 7; i++ {
		positions = append(positions, pos(model.StatusExited, model.Float(float64(i))))
	}
	s := Compute(positions)
	if len(s.TopPerformers) != TopN || *s.TopPerformers[0].RealisedPct != 7 || *s.TopPerformers[4].RealisedPct != 3 {
		t.Errorf("unexpected top performers %+v", s.TopPerformers)
	}
	if s.AccuracyRatio != 100 {
		t.Errorf("expected 100%% accuracy, got %v", s.AccuracyRatio)
	}
}
