package models

import "time"

// BlockOrigin records who created a block.
type BlockOrigin string

const (
	BlockOriginAuto   BlockOrigin = "AUTO"
	BlockOriginManual BlockOrigin = "MANUAL"
)

// DefaultManualDuration labels manual blocks created without a duration.
const DefaultManualDuration = "Permanent"

// BlockRecord denies a source IP access. At most one exists per IP.
// Duration is a label only and is never evaluated.
type BlockRecord struct {
	ID        string      `json:"id"`
	IP        string      `json:"ip"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
	Duration  string      `json:"duration"`
	Origin    BlockOrigin `json:"type"`
}
