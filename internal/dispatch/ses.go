package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/dojohq/crm-automation/internal/config"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

// SESClient sends email through AWS SES v2.
type SESClient struct {
	client *sesv2.Client
	from   string
}

// NewSESClient creates an SES email client. With empty static keys the
// default credential chain applies (IAM role on ECS).
func NewSESClient(ctx context.Context, cfg config.SESConfig) (*SESClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESClient{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.FromAddress,
	}, nil
}

// SendEmail sends one message. textBody may be empty.
func (c *SESClient) SendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	body := &types.Body{}
	if htmlBody != "" {
		body.Html = &types.Content{Data: aws.String(htmlBody)}
	}
	if textBody != "" {
		body.Text = &types.Content{Data: aws.String(textBody)}
	}

	_, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	logger.Debug("ses message accepted", "email", toEmail)
	return nil
}
