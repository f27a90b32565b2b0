// Package ses implements the send-only backend via AWS SES v2. It has no
// mailbox: every read or mutation operation answers with a capability error,
// which is deliberately distinct from an authentication failure.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/dray-supadev/api-gmail/internal/apperr"
	"github.com/dray-supadev/api-gmail/internal/email"
	"github.com/dray-supadev/api-gmail/internal/mime"
	"github.com/dray-supadev/api-gmail/internal/provider"
)

// Config holds the settings for creating a Client.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation. Used for
// testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Client sends mail via the AWS SES v2 API using the service's own
// credentials. Unlike the mailbox backends it is constructed once at startup,
// not per request; no caller token is involved.
type Client struct {
	sender string
	client SendEmailAPI
}

// New creates a Client with the given configuration.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Client with a custom SendEmail implementation, used
// for testing.
func NewWithClient(sender string, client SendEmailAPI) *Client {
	return &Client{sender: sender, client: client}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "ses"
}

// Send delivers a composed message. Messages with attachments go out as a
// raw MIME blob; simple messages use the structured SES format. Never
// retried: at most one send per request.
func (c *Client) Send(ctx context.Context, out *email.Outgoing) (string, error) {
	sender := out.From
	if sender == "" {
		sender = c.sender
	}
	if sender == "" {
		return "", apperr.Validation("from", "no sender address configured")
	}

	var input *sesv2.SendEmailInput
	if len(out.Attachments) > 0 {
		withFrom := *out
		withFrom.From = sender
		raw, err := mime.EncodeRaw(&withFrom)
		if err != nil {
			return "", err
		}
		input = &sesv2.SendEmailInput{
			Content: &types.EmailContent{
				Raw: &types.RawMessage{Data: raw},
			},
		}
	} else {
		input = buildSimpleInput(sender, out)
	}

	resp, err := c.client.SendEmail(ctx, input)
	if err != nil {
		return "", wrapSendError(err)
	}
	return aws.ToString(resp.MessageId), nil
}

// ListMessages is not available on the send-only backend.
func (c *Client) ListMessages(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	return nil, c.capability("listing messages")
}

// GetMessage is not available on the send-only backend.
func (c *Client) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	return nil, c.capability("fetching messages")
}

// GetThread is not available on the send-only backend.
func (c *Client) GetThread(ctx context.Context, id string) ([]email.Message, error) {
	return nil, c.capability("fetching threads")
}

// ListLabels is not available on the send-only backend.
func (c *Client) ListLabels(ctx context.Context) ([]email.Label, error) {
	return nil, c.capability("listing labels")
}

// ModifyLabels is not available on the send-only backend.
func (c *Client) ModifyLabels(ctx context.Context, req provider.ModifyRequest) error {
	return c.capability("modifying labels")
}

// GetProfile returns the configured sender identity. There is no mailbox
// account behind this backend, so the identity is purely the sending address.
func (c *Client) GetProfile(ctx context.Context) (*email.Profile, error) {
	if c.sender == "" {
		return nil, c.capability("fetching the profile")
	}
	return &email.Profile{Email: c.sender}, nil
}

// GetAttachment is not available on the send-only backend.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (*email.AttachmentData, error) {
	return nil, c.capability("fetching attachments")
}

func (c *Client) capability(op string) error {
	return &apperr.CapabilityError{Provider: c.Name(), Op: op}
}

// buildSimpleInput creates a SendEmailInput for messages without attachments.
func buildSimpleInput(sender string, out *email.Outgoing) *sesv2.SendEmailInput {
	body := &types.Body{}
	if out.HtmlBody != "" {
		body.Html = &types.Content{
			Data:    aws.String(out.HtmlBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if out.TextBody != "" {
		body.Text = &types.Content{
			Data:    aws.String(out.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: out.To,
			CcAddresses: out.Cc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(out.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: body,
			},
		},
	}
}

// wrapSendError classifies an SES failure into the shared taxonomy, pulling
// the HTTP status out of the transport error when one is present.
func wrapSendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.TimeoutError{Backend: "ses"}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return &apperr.UpstreamError{
			Backend:    "ses",
			StatusCode: respErr.HTTPStatusCode(),
			Message:    err.Error(),
		}
	}
	return &apperr.UpstreamError{Backend: "ses", Message: err.Error()}
}
