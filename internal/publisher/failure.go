package publisher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FailedEventRecord is the DLQ record wrapping an event that exhausted its
// direct-send retries. Field names are part of the wire contract shared with
// the DLQ consumers.
type FailedEventRecord struct {
	EventID       string `json:"eventId"`
	OriginalTopic string `json:"originalTopic"`
	// OriginalPayload carries the serialized envelope as text, not as a
	// nested JSON object.
	OriginalPayload  string `json:"originalPayload"`
	ExceptionType    string `json:"exceptionType"`
	ExceptionMessage string `json:"exceptionMessage"`
	FailedAt         int64  `json:"failedAt"` // unix millis
}

func newFailedEventRecord(eventID, topic string, payload []byte, cause error, now time.Time) FailedEventRecord {
	return FailedEventRecord{
		EventID:          eventID,
		OriginalTopic:    topic,
		OriginalPayload:  string(payload),
		ExceptionType:    fmt.Sprintf("%T", cause),
		ExceptionMessage: cause.Error(),
		FailedAt:         now.UnixMilli(),
	}
}

// writeBackup persists the record as {eventId}.json under dir. This is the
// last resort when the DLQ itself is unreachable; an operator replays the
// files once the broker recovers.
func writeBackup(dir string, rec FailedEventRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("publisher: create backup dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("publisher: marshal backup record: %w", err)
	}
	path := filepath.Join(dir, rec.EventID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("publisher: write backup file: %w", err)
	}
	return path, nil
}
