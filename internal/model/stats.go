package model

// PerformanceStats summarises recommendation outcomes.
type PerformanceStats struct {
	TotalPositions   int
	ActivePositions  int // entry, hold or exit
	ExitedPositions  int
	AccuracyRatio    float64
	WinningCalls     int
	LosingCalls      int
	AvgWinningReturn float64
	AvgLosingReturn  float64
	AvgDownside      float64
	TopPerformers    []Position
}

// EnrichedPosition is a position with its live return and remaining upside.
type EnrichedPosition struct {
	Position
	ReturnPct    *float64 // live for entry/hold, frozen realised for exit/exited
	PotentialPct *float64
}
