package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current arrival message schema version.
const MessageVersion = 1

// Message is a transcript arrival published by the ingestion side.
type Message struct {
	CompanyID   string    `json:"companyId"`
	Period      string    `json:"period"`
	DocumentRef string    `json:"documentRef"`
	ReceivedAt  time.Time `json:"receivedAt"`
	RequestID   string    `json:"requestId,omitempty"`
	Version     int       `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
