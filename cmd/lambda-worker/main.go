package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/bootstrap"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/storage/db"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	opts := db.DefaultLambdaOptions()
	built, err := bootstrap.Build(context.Background(), cfg, bootstrap.Options{DBOptions: &opts, SkipRouter: true})
	if err != nil {
		initErr = err
		return
	}
	if _, err := built.Scheduler.Recover(context.Background()); err != nil {
		telemetry.Warn("lambda.recover_failed", map[string]any{telemetry.FieldError: err})
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{telemetry.FieldError: initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}

	failures := handleRecords(ctx, app.Engine, event.Records)
	app.Scheduler.Drain(context.WithoutCancel(ctx))
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

// handleRecords reports only retryable failures back to SQS. Malformed
// records are dead-lettered and acknowledged.
func handleRecords(ctx context.Context, h workerproc.ArrivalHandler, records []events.SQSMessage) []events.SQSBatchItemFailure {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		msg, _, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			workerproc.Reject(ctx, h, msg, err)
			continue
		}
		_, err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, msg), h, record.Body)
		if err == nil {
			continue
		}
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) && !procErr.Retryable {
			if errors.Is(procErr.Err, apperr.ErrValidation) {
				workerproc.Reject(ctx, h, msg, procErr.Err)
			}
			continue
		}
		telemetry.Error("lambda.arrival.failed", map[string]any{
			telemetry.FieldCompanyID: msg.CompanyID,
			telemetry.FieldPeriod:    msg.Period,
			telemetry.FieldError:     err,
			"sqs_message_id":         record.MessageId,
		})
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return failures
}

func main() {
	lambda.Start(handler)
}
