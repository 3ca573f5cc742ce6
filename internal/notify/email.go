package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client the sink uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSink mails block alerts through AWS SES.
type EmailSink struct {
	client SESAPI
	from   string
	to     []string
	logger *slog.Logger
}

func NewEmailSink(client SESAPI, from string, to []string, logger *slog.Logger) *EmailSink {
	return &EmailSink{client: client, from: from, to: to, logger: logger}
}

// NewSESEmailSink builds an EmailSink using the default AWS credential chain.
func NewSESEmailSink(ctx context.Context, region, from string, to []string, logger *slog.Logger) (*EmailSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewEmailSink(ses.NewFromConfig(cfg), from, to, logger), nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, evt Event) error {
	if len(s.to) == 0 || s.from == "" {
		return ErrNotConfigured
	}

	subject := fmt.Sprintf("Security alert: %s blocked", evt.IP)
	body := FormatPlainAlert(evt) +
		fmt.Sprintf("\nAttempts: %d\nDuration: %s\nTime: %s\n",
			evt.Attempts, evt.Duration, evt.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &types.Destination{ToAddresses: s.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if out.MessageId != nil {
		s.logger.Debug("alert email accepted", slog.String("message_id", *out.MessageId))
	}
	return nil
}
