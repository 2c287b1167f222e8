// FILE: thermwatch/src/internal/format/json.go
package format

import (
	"encoding/json"
	"fmt"
	"time"

	"thermwatch/src/internal/core"
)

// RecordMeta is the bookkeeping attached to a fallback log record
type RecordMeta struct {
	Reason    string
	RunID     string
	WrittenAt time.Time
}

// AlertRecord is the on-disk shape of one fallback log line
type AlertRecord struct {
	core.Alert
	Reason    string `json:"reason"`
	RunID     string `json:"run_id,omitempty"`
	WrittenAt string `json:"written_at"`
}

// JSONLine encodes an alert as one JSON object terminated by a newline
func JSONLine(alert core.Alert, meta RecordMeta) ([]byte, error) {
	rec := AlertRecord{
		Alert:     alert,
		Reason:    meta.Reason,
		RunID:     meta.RunID,
		WrittenAt: meta.WrittenAt.UTC().Format(time.RFC3339Nano),
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert record: %w", err)
	}

	return append(b, '\n'), nil
}

// ParseRecord decodes one fallback log line
func ParseRecord(line []byte) (AlertRecord, error) {
	var rec AlertRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return AlertRecord{}, fmt.Errorf("failed to unmarshal alert record: %w", err)
	}
	return rec, nil
}
