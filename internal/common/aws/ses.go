// internal/common/aws/ses.go
package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESClient struct {
	client *ses.Client
}

func NewSESClient(ctx context.Context, region string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESClient{client: ses.NewFromConfig(cfg)}, nil
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input)
}

// SendHTML sends a single HTML email and returns the SES message id.
func (s *SESClient) SendHTML(ctx context.Context, from, to, subject, bodyHTML string) (string, error) {
	out, err := s.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    awssdk.String(subject),
				Charset: awssdk.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    awssdk.String(bodyHTML),
					Charset: awssdk.String("UTF-8"),
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}
