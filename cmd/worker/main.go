package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"transcript-backend/internal/bootstrap"
	"transcript-backend/internal/queue"
	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/storage/db"
	"transcript-backend/internal/shared/telemetry"
	"transcript-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds   = 300
	defaultConsumerConcurrency = 4
	defaultShutdownTimeoutSec  = 30
	receiveCountAttr           = "ApproximateReceiveCount"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "worker",
		Short:        "Run analysis jobs and consume transcript arrivals",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.Load())
		},
	}
	root.AddCommand(publishCommand())

	if err := root.ExecuteContext(ctx); err != nil {
		telemetry.Error("worker.exit", map[string]any{telemetry.FieldError: err})
		os.Exit(1)
	}
}

func publishCommand() *cobra.Command {
	var msg queue.Message
	var receivedAt string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a transcript arrival to the arrival queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if receivedAt != "" {
				at, err := time.Parse(time.RFC3339, receivedAt)
				if err != nil {
					return apperr.Validationf("received-at must be RFC3339: %v", err)
				}
				msg.ReceivedAt = at
			}
			msg.RequestID = uuid.NewString()
			client, err := queue.NewSQSClient(cmd.Context(), cfg.AWSRegion, cfg.ArrivalQueueURL)
			if err != nil {
				return err
			}
			if err := client.Send(cmd.Context(), msg); err != nil {
				return err
			}
			telemetry.Info("worker.arrival.published", map[string]any{
				telemetry.FieldCompanyID: msg.CompanyID,
				telemetry.FieldPeriod:    msg.Period,
				telemetry.FieldRequestID: msg.RequestID,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.CompanyID, "company", "", "Company id")
	cmd.Flags().StringVar(&msg.Period, "period", "", "Fiscal period, e.g. Q2FY26")
	cmd.Flags().StringVar(&msg.DocumentRef, "document", "", "Object store key of the transcript document")
	cmd.Flags().StringVar(&receivedAt, "received-at", "", "Arrival time (RFC3339); defaults to processing time")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	dbOpts := db.DefaultWorkerOptions(cfg.WorkerConcurrency)
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{DBOptions: &dbOpts, SkipRouter: true})
	if err != nil {
		return err
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	recovered, err := app.Scheduler.Recover(ctx)
	if err != nil {
		return err
	}
	telemetry.Info("worker.recovered", map[string]any{"jobs": recovered})

	schedDone := make(chan error, 1)
	go func() { schedDone <- app.Scheduler.Run(ctx) }()

	if cfg.ArrivalQueueURL == "" {
		telemetry.Info("worker.started", map[string]any{"arrival_queue": "disabled"})
		return <-schedDone
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return err
	}
	poll(ctx, sqs.NewFromConfig(awsCfg), cfg.ArrivalQueueURL, app.Engine)
	return <-schedDone
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// poll consumes the arrival queue until ctx ends, then waits for in-flight
// messages up to the shutdown timeout.
func poll(ctx context.Context, client sqsAPI, queueURL string, handler workerproc.ArrivalHandler) {
	visibilitySeconds := envInt("ARRIVAL_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("ARRIVAL_CONSUMER_CONCURRENCY", defaultConsumerConcurrency)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"arrival_queue":      queueURL,
		"concurrency":        concurrency,
		"visibility_seconds": visibilitySeconds,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName(receiveCountAttr)},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{telemetry.FieldError: err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(context.WithoutCancel(ctx), client, queueURL, handler, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// handleMessage deletes the message once the arrival is handled or can never
// succeed. Retryable failures are left for redelivery after the visibility
// timeout.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, handler workerproc.ArrivalHandler, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, decoded)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields[telemetry.FieldError] = err
		switch e := err.(type) {
		case workerproc.ErrEmptyBody:
			telemetry.Error("worker.arrival.empty_body", fields)
		case workerproc.ErrDecode:
			telemetry.Error("worker.arrival.decode_failed", fields)
		case workerproc.ErrMissingField:
			fields["field"] = e.Field
			telemetry.Error("worker.arrival.missing_field", fields)
		default:
			telemetry.Error("worker.arrival.decode_failed", fields)
		}
		workerproc.Reject(ctx, handler, decoded, err)
		deleteMessage(ctx, client, queueURL, msg, decoded)
		return
	}

	telemetry.Info("worker.arrival.received", baseFields(msg, decoded))

	out, err := workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), handler, body)
	if err != nil {
		fields := baseFields(msg, decoded)
		fields[telemetry.FieldError] = err
		procErr, ok := err.(workerproc.ErrProcess)
		if ok && !procErr.Retryable {
			if errors.Is(procErr.Err, apperr.ErrValidation) {
				workerproc.Reject(ctx, handler, decoded, procErr.Err)
			}
			telemetry.Error("worker.arrival.rejected", fields)
			deleteMessage(ctx, client, queueURL, msg, decoded)
			return
		}
		telemetry.Error("worker.arrival.failed", fields)
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded) {
		fields := baseFields(msg, decoded)
		fields["jobs_created"] = len(out.Created)
		fields["duplicates"] = out.Duplicates
		telemetry.Info("worker.arrival.completed", fields)
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, decoded queue.Message) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, decoded)
		fields[telemetry.FieldError] = "missing receipt handle"
		telemetry.Error("worker.arrival.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, decoded)
		fields[telemetry.FieldError] = err
		telemetry.Error("worker.arrival.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, decoded queue.Message) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if decoded.CompanyID != "" {
		fields[telemetry.FieldCompanyID] = decoded.CompanyID
	}
	if decoded.Period != "" {
		fields[telemetry.FieldPeriod] = decoded.Period
	}
	if strings.TrimSpace(decoded.RequestID) != "" {
		fields[telemetry.FieldRequestID] = decoded.RequestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes[receiveCountAttr]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
