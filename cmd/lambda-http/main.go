package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"transcript-backend/internal/bootstrap"
	"transcript-backend/internal/shared/config"
	"transcript-backend/internal/shared/storage/db"
	"transcript-backend/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	app       *bootstrap.App
	ginLambda *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	opts := db.DefaultLambdaOptions()
	built, err := bootstrap.Build(context.Background(), cfg, bootstrap.Options{DBOptions: &opts})
	if err != nil {
		initErr = err
		return
	}
	// Jobs left Pending or Failed by earlier invocations run on this one's drain.
	if _, err := built.Scheduler.Recover(context.Background()); err != nil {
		telemetry.Warn("lambda.recover_failed", map[string]any{telemetry.FieldError: err})
	}
	app = built
	ginLambda = ginadapter.NewV2(built.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{telemetry.FieldError: initErr})
		body, _ := json.Marshal(map[string]string{"error": "bootstrap failed"})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: 500,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, initErr
	}
	resp, err := ginLambda.ProxyWithContext(ctx, req)
	// Arrivals and manual runs enqueue jobs in-process; run them before the
	// execution environment is frozen.
	app.Scheduler.Drain(context.WithoutCancel(ctx))
	return resp, err
}

func main() {
	lambda.Start(handler)
}
