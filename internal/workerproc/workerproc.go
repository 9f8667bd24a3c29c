// Package workerproc turns arrival queue payloads into trigger engine calls.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/queue"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/trigger"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingField indicates a message without one of its required fields.
type ErrMissingField struct {
	Meta      MessageMeta
	Field     string
	RequestID string
}

func (e ErrMissingField) Error() string { return "missing " + e.Field }

// ErrProcess indicates the trigger engine failed after successful parsing.
// Retryable is false when redelivery cannot change the outcome.
type ErrProcess struct {
	CompanyID string
	Period    string
	RequestID string
	Retryable bool
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process arrival"
	}
	return "process arrival: " + e.Err.Error()
}

// ArrivalHandler is the part of the trigger engine the worker drives.
type ArrivalHandler interface {
	HandleArrival(ctx context.Context, a trigger.Arrival) (trigger.Outcome, error)
	DeadLetter(ctx context.Context, a trigger.Arrival, reason string, cause error)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	for _, f := range []struct{ name, value string }{
		{"companyId", msg.CompanyID},
		{"period", msg.Period},
		{"documentRef", msg.DocumentRef},
	} {
		if strings.TrimSpace(f.value) == "" {
			return msg, meta, ErrMissingField{Meta: meta, Field: f.name, RequestID: msg.RequestID}
		}
	}
	return msg, meta, nil
}

// ToArrival converts a queue message to a trigger arrival.
func ToArrival(msg queue.Message) trigger.Arrival {
	return trigger.Arrival{
		CompanyID:   msg.CompanyID,
		Period:      msg.Period,
		DocumentRef: msg.DocumentRef,
		ReceivedAt:  msg.ReceivedAt,
	}
}

// Reject dead-letters a message that failed to parse. Whatever fields were
// decoded are kept on the record.
func Reject(ctx context.Context, h ArrivalHandler, msg queue.Message, cause error) {
	if h == nil {
		return
	}
	h.DeadLetter(ctx, ToArrival(msg), trigger.ReasonMalformed, cause)
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and hands the arrival to the engine.
func HandleMessage(ctx context.Context, h ArrivalHandler, body string) (trigger.Outcome, error) {
	if h == nil {
		return trigger.Outcome{}, errors.New("arrival handler not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return trigger.Outcome{}, err
		}
	}

	out, err := h.HandleArrival(ctx, ToArrival(msg))
	if err != nil {
		return out, ErrProcess{
			CompanyID: msg.CompanyID,
			Period:    msg.Period,
			RequestID: msg.RequestID,
			Retryable: retryable(err),
			Err:       err,
		}
	}
	return out, nil
}

// retryable treats every error except the classified terminal ones as worth
// another delivery.
func retryable(err error) bool {
	if apperr.IsTransient(err) {
		return true
	}
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrPermanent),
		errors.Is(err, apperr.ErrConflict):
		return false
	}
	return true
}
