package queue

import (
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		CompanyID:   "infy",
		Period:      "Q2FY26",
		DocumentRef: "transcripts/infy/q2fy26.pdf",
		ReceivedAt:  time.Date(2025, 10, 17, 9, 0, 0, 0, time.UTC),
		RequestID:   "request-456",
		Version:     MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageAcceptsMissingReceivedAt(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"companyId":"tcs","period":"Q1FY26","documentRef":"k","version":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.ReceivedAt.IsZero() || got.CompanyID != "tcs" {
		t.Fatalf("unexpected message %+v", got)
	}
}
