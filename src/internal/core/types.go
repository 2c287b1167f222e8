// FILE: thermwatch/src/internal/core/types.go
package core

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Reading is a single parsed sensor row. Timestamp is unix milliseconds.
type Reading struct {
	SensorID    string  `json:"sensor_id"`
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
}

// Line is a raw line yielded by a source, with the byte offset just past it
type Line struct {
	Text   string
	Offset int64
}

// AnnotationStatus records how the repair action of an alert was obtained
type AnnotationStatus string

const (
	AnnotationOK           AnnotationStatus = "OK"
	AnnotationDegraded     AnnotationStatus = "DEGRADED"
	AnnotationUnconfigured AnnotationStatus = "UNCONFIGURED"
)

// Alert is an anomalous reading enriched with a repair action.
// ObservedAt is the reading timestamp in unix milliseconds.
type Alert struct {
	ID               string           `json:"id"`
	SensorID         string           `json:"sensor_id"`
	Temperature      float64          `json:"temperature"`
	Vibration        float64          `json:"vibration"`
	ObservedAt       int64            `json:"observed_at"`
	RepairAction     string           `json:"repair_action"`
	AnnotationStatus AnnotationStatus `json:"annotation_status"`
}

// NewAlert builds an alert for an anomalous reading
func NewAlert(r Reading, repairAction string, status AnnotationStatus) Alert {
	return Alert{
		ID:               AlertID(r),
		SensorID:         r.SensorID,
		Temperature:      r.Temperature,
		Vibration:        r.Vibration,
		ObservedAt:       r.Timestamp,
		RepairAction:     repairAction,
		AnnotationStatus: status,
	}
}

// AlertID derives a stable identifier from the identity fields of a reading
func AlertID(r Reading) string {
	key := r.SensorID + "|" +
		strconv.FormatInt(r.Timestamp, 10) + "|" +
		strconv.FormatFloat(r.Temperature, 'g', -1, 64) + "|" +
		strconv.FormatFloat(r.Vibration, 'g', -1, 64)
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// PersistResult is the outcome of handing an alert to a sink
type PersistResult int

const (
	// Committed means the durable store acknowledged the write
	Committed PersistResult = iota
	// CommittedLocal means no store is configured and the alert is in the fallback log
	CommittedLocal
	// Degraded means the store was unavailable and the alert went to the fallback log
	Degraded
	// Failed means the alert was rejected and is not recorded anywhere
	Failed
)

func (r PersistResult) String() string {
	switch r {
	case Committed:
		return "committed"
	case CommittedLocal:
		return "committed_local"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}
