// Package notify delivers quote-ready notifications over SES email and
// SNS SMS once a group's affordability calculation completes.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	commonaws "ichra-quotes/internal/common/aws"
	"ichra-quotes/internal/common/config"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier tells group contacts that their affordability results are in.
// Delivery failures are logged, never propagated; a missed notification
// does not affect the calculation itself.
type Notifier struct {
	cfg       config.NotificationConfig
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
}

func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	sesClient, err := commonaws.NewSESClient(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("init SES client: %w", err)
	}
	snsClient, err := commonaws.NewSNSClient(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("init SNS client: %w", err)
	}
	return &Notifier{
		cfg:       cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
	}, nil
}

// NewNotifierWithClients wires explicit clients, used by tests.
func NewNotifierWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:       cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// CalculationCompleted implements affordability.Notifier.
func (n *Notifier) CalculationCompleted(ctx context.Context, group *models.Group, calc *models.AffordabilityCalculation) {
	subject := fmt.Sprintf("Affordability results ready for %s", group.Name)
	body := fmt.Sprintf(
		"The ICHRA affordability calculation for %s has completed: %d of %d members affordable (%s).",
		group.Name, calc.Summary.AffordableMembers, calc.Summary.TotalMembers, calc.Summary.Overall,
	)

	if n.cfg.Email.Enabled && group.ContactEmail != "" {
		if err := n.sendEmail(ctx, group.ContactEmail, subject, body); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{
				"error":   err,
				"groupId": group.ID,
				"email":   group.ContactEmail,
			})
		}
	}

	if n.cfg.SMS.Enabled && group.ContactPhone != "" {
		if err := n.sendSMS(ctx, group.ContactPhone, body); err != nil {
			n.logger.Error("SMS send failed", map[string]interface{}{
				"error":   err,
				"groupId": group.ID,
				"phone":   group.ContactPhone,
			})
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
