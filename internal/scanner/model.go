package scanner

import (
	"time"

	"github.com/sydlexius/camwatch/internal/camera"
)

// Scan states reported in ScanResult.Status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusTimedOut  = "timed_out"
	StatusCanceled  = "canceled"
)

// ScanResult summarizes one sweep of the code range.
type ScanResult struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Planned     int        `json:"planned"`
	Probed      int        `json:"probed"`
	Online      int        `json:"online"`
	TimedOut    bool       `json:"timed_out"`
}

// Snapshot is an immutable view of the fleet published after a scan.
// Records and Results must not be modified by readers.
type Snapshot struct {
	Records   []camera.StatusRecord
	Results   []camera.ProbeResult
	ScannedAt time.Time
	Partial   bool
	Online    int
}

// State describes the scanner loop for clients.
type State struct {
	IsScanning       bool      `json:"isScanning"`
	LastScanTimedOut bool      `json:"scanTimeoutOccurred"`
	NextScanAt       time.Time `json:"nextScanAt"`
}

var emptySnapshot = &Snapshot{}
