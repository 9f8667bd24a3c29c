package distribution

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/telemetry"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes emails to the structured log instead of sending them.
type LogSender struct{}

// Send logs the message envelope.
func (LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("email.logged", map[string]any{
		"to":         strings.Join(msg.To, ","),
		"subject":    msg.Subject,
		"body_bytes": len(msg.Body),
	})
	return nil
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email through Amazon SES v2.
type SESSender struct {
	client sesAPI
	from   string
}

// NewSESSender loads AWS configuration for region and builds an SES sender.
func NewSESSender(ctx context.Context, region, from string) (*SESSender, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("EMAIL_FROM is required for SES")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

// Send delivers a plain-text email.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "ses send email")
	}
	telemetry.Info("email.sent", map[string]any{
		"message_id": aws.ToString(out.MessageId),
		"recipients": len(msg.To),
	})
	return nil
}
