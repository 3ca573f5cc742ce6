package models

// ChartPoint is one four-hour bucket of the attempt chart.
type ChartPoint struct {
	Time     string `json:"time"`
	Attempts int    `json:"attempts"`
}

// Summary holds the headline dashboard counters.
type Summary struct {
	ActiveIncidents int `json:"activeIncidents"`
	BlockedIPs      int `json:"blockedIps"`
	TotalAttacks    int `json:"totalAttacks"`
}
