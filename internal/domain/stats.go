package domain

// PerformanceStats aggregates terminal trades. TotalProfit and TotalLoss are
// non-negative accumulators.
type PerformanceStats struct {
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	FailedTrades     int     `json:"failed_trades"`
	TotalProfit      float64 `json:"total_profit"`
	TotalLoss        float64 `json:"total_loss"`
	WinRate          float64 `json:"win_rate"`
	AverageProfit    float64 `json:"average_profit"`
	NetProfit        float64 `json:"net_profit"`
	NakedExposures   int     `json:"naked_exposures"`
}
