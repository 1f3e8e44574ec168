package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSTransport queues confirmations on SQS for an external mailer.
type SQSTransport struct {
	SQS      SQSAPI
	QueueURL string
}

// NewSQSTransport returns a transport bound to a queue URL.
func NewSQSTransport(client SQSAPI, queueURL string) *SQSTransport {
	return &SQSTransport{SQS: client, QueueURL: queueURL}
}

func (t *SQSTransport) Name() string { return "sqs" }

// Send enqueues the message; the id is the one SQS assigns.
func (t *SQSTransport) Send(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(confirmationEnvelope{
		MessageID: uuid.NewString(),
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode confirmation: %w", err)
	}
	out, err := t.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String("order_confirmation")},
		},
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
