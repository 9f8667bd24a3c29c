package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"transcript-backend/internal/queue"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/trigger"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeEngine struct {
	err         error
	handled     int
	deadLetters []string
}

func (f *fakeEngine) HandleArrival(ctx context.Context, a trigger.Arrival) (trigger.Outcome, error) {
	_ = ctx
	_ = a
	f.handled++
	return trigger.Outcome{}, f.err
}

func (f *fakeEngine) DeadLetter(ctx context.Context, a trigger.Arrival, reason string, cause error) {
	_ = ctx
	_ = a
	_ = cause
	f.deadLetters = append(f.deadLetters, reason)
}

func arrivalMessage(t *testing.T, id string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{CompanyID: "infy", Period: "Q2FY26", DocumentRef: "k", RequestID: "req-" + id})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String("m" + id),
		ReceiptHandle: aws.String("r" + id),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{receiveCountAttr: "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	engine := &fakeEngine{}

	handleMessage(context.Background(), client, "queue", engine, arrivalMessage(t, "1"))

	if len(client.deleted) != 1 || engine.handled != 1 {
		t.Fatalf("expected delete after handling, got deleted=%d handled=%d", len(client.deleted), engine.handled)
	}
}

func TestWorkerDoesNotDeleteOnRetryableFailure(t *testing.T) {
	client := &fakeSQS{}
	engine := &fakeEngine{err: errors.New("connection reset")}

	handleMessage(context.Background(), client, "queue", engine, arrivalMessage(t, "2"))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesUnknownCompany(t *testing.T) {
	client := &fakeSQS{}
	engine := &fakeEngine{err: apperr.NotFoundf("company ghost not found")}

	handleMessage(context.Background(), client, "queue", engine, arrivalMessage(t, "3"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(engine.deadLetters) != 0 {
		t.Fatalf("engine dead-letters unknown companies itself, got %v", engine.deadLetters)
	}
}

func TestWorkerDeadLettersInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	engine := &fakeEngine{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), client, "queue", engine, msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(engine.deadLetters) != 1 || engine.deadLetters[0] != trigger.ReasonMalformed || engine.handled != 0 {
		t.Fatalf("expected malformed dead letter, got %v handled=%d", engine.deadLetters, engine.handled)
	}
}

func TestReceiveCount(t *testing.T) {
	if got := receiveCount(sqstypes.Message{Attributes: map[string]string{receiveCountAttr: "3"}}); got != 3 {
		t.Fatalf("receiveCount = %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("receiveCount = %d", got)
	}
}
