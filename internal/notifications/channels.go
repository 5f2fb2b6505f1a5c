package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

var errNoAddress = errors.New("recipient has no address for channel")

// Recipient is the contact data a channel needs
type Recipient struct {
	UserID uint
	Name   string
	Email  string
	Phone  string
}

// Channel delivers a notification outside the application
type Channel interface {
	Name() string
	Send(ctx context.Context, to Recipient, n *Notification) error
}

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends plain-text mail through Amazon SES
type EmailChannel struct {
	client sesAPI
	from   string
}

func NewEmailChannel(cfg aws.Config, from string) *EmailChannel {
	return &EmailChannel{client: sesv2.NewFromConfig(cfg), from: from}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, to Recipient, n *Notification) error {
	if to.Email == "" {
		return errNoAddress
	}
	_, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to.Email}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(n.Title), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(n.Message), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSChannel sends text messages through Amazon SNS
type SMSChannel struct {
	client   snsAPI
	senderID string
}

func NewSMSChannel(cfg aws.Config, senderID string) *SMSChannel {
	return &SMSChannel{client: sns.NewFromConfig(cfg), senderID: senderID}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Send(ctx context.Context, to Recipient, n *Notification) error {
	if to.Phone == "" {
		return errNoAddress
	}
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to.Phone),
		Message:     aws.String(n.Title + ": " + n.Message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if c.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType: aws.String("String"), StringValue: aws.String(c.senderID),
		}
	}
	if _, err := c.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}
