package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/bulkmailer/internal/domain"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
)

type fakeSender struct {
	outcome func(req *domain.SendRequest) domain.SendOutcome
	calls   int
}

func (f *fakeSender) Send(ctx context.Context, req *domain.SendRequest) domain.SendOutcome {
	f.calls++
	return f.outcome(req)
}

type fakeAdapter struct{}

func (fakeAdapter) Fetch(ctx context.Context, max, waitSeconds int) ([]queueadapter.Message, error) {
	return nil, nil
}
func (fakeAdapter) Ack(ctx context.Context, receiptToken string) error { return nil }
func (fakeAdapter) DeadLetter(ctx context.Context, body string, attributes map[string]string) error {
	return nil
}
func (fakeAdapter) Parse(msg queueadapter.Message) (*domain.SendRequest, error) {
	return &domain.SendRequest{Recipient: "user@test.com", Subject: "s", Body: "b", ContentKind: domain.ContentText}, nil
}

func messages(n int) []queueadapter.Message {
	out := make([]queueadapter.Message, n)
	for i := range out {
		out[i] = queueadapter.Message{Body: "{}", ReceiptToken: "r"}
	}
	return out
}

func TestDispatch_AllSent(t *testing.T) {
	sender := &fakeSender{outcome: func(req *domain.SendRequest) domain.SendOutcome {
		return domain.Sent("id", 1)
	}}
	pool := New(sender, fakeAdapter{}, 10)

	results := pool.Dispatch(context.Background(), messages(3), time.Now().Add(time.Minute))

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, domain.OutcomeSent, r.Outcome.Kind)
	}
	assert.Equal(t, 3, sender.calls)
}

func TestDispatch_EmptyBatch(t *testing.T) {
	sender := &fakeSender{outcome: func(req *domain.SendRequest) domain.SendOutcome { return domain.Sent("id", 1) }}
	pool := New(sender, fakeAdapter{}, 10)

	results := pool.Dispatch(context.Background(), nil, time.Now().Add(time.Minute))
	assert.Empty(t, results)
	assert.Equal(t, 0, sender.calls)
}

func TestDispatch_ChunksRespectMaxConcurrency(t *testing.T) {
	sender := &fakeSender{outcome: func(req *domain.SendRequest) domain.SendOutcome { return domain.Sent("id", 1) }}
	pool := New(sender, fakeAdapter{}, 2)

	results := pool.Dispatch(context.Background(), messages(5), time.Now().Add(time.Minute))
	assert.Len(t, results, 5)
}

func TestDispatch_DeadlineTooCloseRefusesWithoutSend(t *testing.T) {
	sender := &fakeSender{outcome: func(req *domain.SendRequest) domain.SendOutcome { return domain.Sent("id", 1) }}
	pool := New(sender, fakeAdapter{}, 10)

	results := pool.Dispatch(context.Background(), messages(20), time.Now().Add(4*time.Second))

	require.Len(t, results, 20)
	for _, r := range results {
		assert.Equal(t, domain.OutcomeRetryable, r.Outcome.Kind)
	}
	assert.Equal(t, 0, sender.calls)
}
