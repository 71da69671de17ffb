package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	receiveIn *sqs.ReceiveMessageInput
	deleted   []string
	sent      []string
	err       error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{
		{MessageId: aws.String("m-1"), ReceiptHandle: aws.String("r-1"), Body: aws.String(`{"messageId":"x"}`)},
	}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, f.err
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, f.err
}

func TestSQSReceiveClampsLimits(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSWithClient(fake, "https://sqs.local/queue", 45)

	msgs, err := q.Receive(context.Background(), 50, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{ID: "m-1", Receipt: "r-1", Body: []byte(`{"messageId":"x"}`)}, msgs[0])

	require.NotNil(t, fake.receiveIn)
	assert.Equal(t, int32(10), fake.receiveIn.MaxNumberOfMessages)
	assert.Equal(t, int32(20), fake.receiveIn.WaitTimeSeconds)
	assert.Equal(t, int32(45), fake.receiveIn.VisibilityTimeout)
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(fake.receiveIn.QueueUrl))
}

func TestSQSDeleteAndSend(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSWithClient(fake, "https://sqs.local/queue", 0)
	ctx := context.Background()

	require.NoError(t, q.Delete(ctx, "r-1"))
	require.NoError(t, q.Send(ctx, []byte("body")))
	assert.Equal(t, []string{"r-1"}, fake.deleted)
	assert.Equal(t, []string{"body"}, fake.sent)
}

func TestSQSErrorsAreWrapped(t *testing.T) {
	boom := errors.New("throttled")
	q := NewSQSWithClient(&fakeSQS{err: boom}, "u", 0)

	_, err := q.Receive(context.Background(), 1, time.Second)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, q.Delete(context.Background(), "r"), boom)
}
