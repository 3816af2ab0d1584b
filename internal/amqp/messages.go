package amqp

import (
	"encoding/json"
	"time"
)

// ImportRequest asks a worker to ingest already-extracted records for a user.
// Records holds the same JSON shape accepted by the batch endpoint.
type ImportRequest struct {
	UserID    string          `json:"userId"`
	Source    string          `json:"source,omitempty"`
	Records   json.RawMessage `json:"records"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewImportRequest(userID, source string, records json.RawMessage) *ImportRequest {
	return &ImportRequest{
		UserID:    userID,
		Source:    source,
		Records:   records,
		Timestamp: time.Now(),
	}
}

func (m *ImportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportRequestFromJSON(data []byte) (*ImportRequest, error) {
	var msg ImportRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ImportCompleted is emitted after every ingested batch.
type ImportCompleted struct {
	UserID     string    `json:"userId"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	Errors     int       `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewImportCompleted(userID string, inserted, duplicates, errors int) *ImportCompleted {
	return &ImportCompleted{
		UserID:     userID,
		Inserted:   inserted,
		Duplicates: duplicates,
		Errors:     errors,
		Timestamp:  time.Now(),
	}
}

func (m *ImportCompleted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportCompletedFromJSON(data []byte) (*ImportCompleted, error) {
	var msg ImportCompleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
