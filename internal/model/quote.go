package model

import "time"

// Quote is a point-in-time market quote. Fields the upstream omits stay nil.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         *float64  `json:"price"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Change        *float64  `json:"change"`
	PercentChange *float64  `json:"percent_change"`
	FetchedAt     time.Time `json:"fetched_at"`
}
