package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op names the kind of ledger change carried by a message.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpDeleteAll Op = "delete_all"
	OpImport    Op = "import"
)

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpDeleteAll, OpImport:
		return true
	}
	return false
}

// RecordChangedMessage announces that a user's ledger changed.
// The consumer re-reads the ledger from the database; the message only
// says whose and why.
type RecordChangedMessage struct {
	UserID    string    `json:"user_id"`
	RecordID  int64     `json:"record_id,omitempty"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordChangedMessage(userID string, recordID int64, op Op) *RecordChangedMessage {
	return &RecordChangedMessage{
		UserID:    userID,
		RecordID:  recordID,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and checks a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("message has no user id")
	}
	if !msg.Op.Valid() {
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	return &msg, nil
}
