package main

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvusHold/courier/internal/queue"
	tdomain "github.com/corvusHold/courier/internal/tracking/domain"
	transport "github.com/corvusHold/courier/internal/transport/domain"
)

type fakeSender struct {
	got transport.Envelope
	err error
}

func (f *fakeSender) Send(ctx context.Context, companyID uuid.UUID, env transport.Envelope) (string, error) {
	f.got = env
	if f.err != nil {
		return "", f.err
	}
	return "<prov@relay>", nil
}

type fakeEvents struct {
	appended []tdomain.Event
}

func (f *fakeEvents) ResolveToken(ctx context.Context, token string) (tdomain.RecipientRef, bool, error) {
	return tdomain.RecipientRef{}, false, nil
}

func (f *fakeEvents) AppendEvent(ctx context.Context, e tdomain.Event) error {
	f.appended = append(f.appended, e)
	return nil
}

func sampleJob() queue.Job {
	return queue.Job{
		MessageID: uuid.New(),
		CompanyID: uuid.New(),
		Envelope: queue.JobEnvelope{
			RecipientID: uuid.New(),
			Kind:        "to",
			To:          "a@example.com",
			Headers:     map[string]string{"X-Courier-Track-Token": "tok"},
		},
		Payload: queue.JobPayload{
			From:    "noreply@example.com",
			Subject: "hello",
			HTML:    "<p>hi</p>",
			Attachments: []queue.JobAttachment{
				{Filename: "a.txt", ContentType: "text/plain", Content: []byte("x")},
			},
		},
	}
}

func TestDeliver_MapsJobToEnvelope(t *testing.T) {
	sender := &fakeSender{}
	job := sampleJob()

	providerID, err := deliver(context.Background(), sender, job)
	require.NoError(t, err)
	assert.Equal(t, "<prov@relay>", providerID)

	assert.Equal(t, "a@example.com", sender.got.To)
	assert.Equal(t, "noreply@example.com", sender.got.From)
	assert.Equal(t, "<p>hi</p>", sender.got.HTMLBody)
	assert.Equal(t, "tok", sender.got.Headers["X-Courier-Track-Token"])
	require.Len(t, sender.got.Attachments, 1)
	assert.Equal(t, "a.txt", sender.got.Attachments[0].Filename)
}

func TestDeliver_PropagatesTransportError(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay refused")}
	_, err := deliver(context.Background(), sender, sampleJob())
	assert.Error(t, err)
}

func TestRecordOutcome_AppendsEvent(t *testing.T) {
	events := &fakeEvents{}
	job := sampleJob()

	require.NoError(t, recordOutcome(context.Background(), events, job, "delivered", "<prov@relay>"))
	require.Len(t, events.appended, 1)

	e := events.appended[0]
	assert.Equal(t, job.MessageID, e.MessageID)
	assert.Equal(t, job.Envelope.RecipientID, e.RecipientID)
	assert.Equal(t, tdomain.EventType("delivered"), e.Type)
	assert.Equal(t, "<prov@relay>", e.Meta["detail"])
}

func TestRedeliveryCount(t *testing.T) {
	assert.Equal(t, 0, redeliveryCount(amqp.Delivery{}))
	assert.Equal(t, 1, redeliveryCount(amqp.Delivery{Redelivered: true}))
	assert.Equal(t, 2, redeliveryCount(amqp.Delivery{
		Headers: amqp.Table{retryCountHeader: int32(2)},
	}))
	// brokers hand back header ints in different widths
	assert.Equal(t, 3, redeliveryCount(amqp.Delivery{
		Headers: amqp.Table{retryCountHeader: int64(3)},
	}))
	// the explicit counter wins over the redelivered flag
	assert.Equal(t, 2, redeliveryCount(amqp.Delivery{
		Redelivered: true,
		Headers:     amqp.Table{retryCountHeader: int32(2)},
	}))
}

func TestRedeliveryCount_BoundEngages(t *testing.T) {
	d := amqp.Delivery{}
	attempts := 0
	for redeliveryCount(d) < maxRedeliveries {
		attempts++
		d = amqp.Delivery{Headers: amqp.Table{retryCountHeader: int32(redeliveryCount(d) + 1)}}
	}
	assert.Equal(t, maxRedeliveries, attempts, "a permanently failing job is retried a fixed number of times")
}
