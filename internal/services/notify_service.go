package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Notifier delivers security notices to a user's recovery contact.
// Delivery is always best effort; the auth flow never depends on it.
type Notifier interface {
	SendRecoveryConfirmation(ctx context.Context, email, username string) error
	SendLockoutNotice(ctx context.Context, email, username string, until time.Time) error
}

// NoopNotifier discards all notices. Used when no email provider is
// configured, and in tests.
type NoopNotifier struct{}

func (NoopNotifier) SendRecoveryConfirmation(ctx context.Context, email, username string) error {
	return nil
}

func (NoopNotifier) SendLockoutNotice(ctx context.Context, email, username string, until time.Time) error {
	return nil
}

// SESNotifier sends notices through AWS SES.
type SESNotifier struct {
	client      *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier builds a notifier from the ambient AWS credential chain.
func NewSESNotifier(region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *SESNotifier) SendRecoveryConfirmation(ctx context.Context, email, username string) error {
	subject := "Recovery contact confirmed"
	body := fmt.Sprintf(
		"This address is now the account recovery contact for %q.\n\n"+
			"If you did not make this change, secure your account immediately.\n",
		username,
	)
	return s.send(ctx, email, subject, body)
}

func (s *SESNotifier) SendLockoutNotice(ctx context.Context, email, username string, until time.Time) error {
	subject := "Account temporarily locked"
	body := fmt.Sprintf(
		"The account %q was locked after repeated failed sign-in attempts.\n\n"+
			"Sign-in will be possible again after %s.\n\n"+
			"If this was not you, someone may be trying to access the account.\n",
		username, until.UTC().Format(time.RFC1123),
	)
	return s.send(ctx, email, subject, body)
}

func (s *SESNotifier) send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	s.logger.Info("security notice sent", slog.String("subject", subject))
	return nil
}
