package models

import "time"

// IncidentStatus is the administrator-facing disposition of an incident.
type IncidentStatus string

const (
	IncidentWatching IncidentStatus = "WATCHING"
	IncidentBlocked  IncidentStatus = "BLOCKED"
	IncidentResolved IncidentStatus = "RESOLVED"
)

// IncidentRecord summarizes a source's malicious activity.
type IncidentRecord struct {
	ID           string         `json:"id"`
	IP           string         `json:"ip"`
	Attempts     int            `json:"attempts"`
	FirstAttempt time.Time      `json:"firstAttempt"`
	LastAttempt  time.Time      `json:"lastAttempt"`
	Country      string         `json:"country"`
	Status       IncidentStatus `json:"status"`
	ISP          string         `json:"isp"`
	ThreatScore  int            `json:"threatScore"`
	Usernames    []string       `json:"usernames"`
}

// ThreatScore derives the 0-100 severity rating from an attempt count.
func ThreatScore(attempts int) int {
	return min(50+10*attempts, 100)
}
