package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/pkg/schema"
)

type MockProducerClient struct {
	mock.Mock
}

func (m *MockProducerClient) ProduceSync(
	ctx context.Context, rs ...*kgo.Record,
) kgo.ProduceResults {
	args := m.Called(ctx, rs)
	return args.Get(0).(kgo.ProduceResults)
}

func (m *MockProducerClient) Close() {
	m.Called()
}

type MockEncoder struct {
	mock.Mock
}

func (m *MockEncoder) Encode(v any) ([]byte, error) {
	args := m.Called(v)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

var testEvent = domain.WebhookEvent{
	Status: domain.TransactionStatus{
		RefID:  "trx-42",
		SKU:    "xld10",
		Status: "Sukses",
		Price:  10325,
	},
	ReceivedAt: time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC),
}

func newTestProducer(
	t *testing.T, cl *MockProducerClient, enc *MockEncoder,
) StatusProducer {
	t.Helper()
	p, err := NewStatusProducer(
		ProducerRawClientOpt(cl),
		ProducerEncoderOpt(enc),
	)
	require.NoError(t, err)
	return p
}

func TestStatusProducer(t *testing.T) {
	t.Run("KeyedByRefID", func(t *testing.T) {
		cl := new(MockProducerClient)
		enc := new(MockEncoder)

		want := transactionStatusToSchemaV1(testEvent)
		enc.On("Encode", want).Return([]byte("encoded"), nil)
		cl.On("ProduceSync", mock.Anything, mock.MatchedBy(func(rs []*kgo.Record) bool {
			return len(rs) == 1 &&
				string(rs[0].Key) == "trx-42" &&
				string(rs[0].Value) == "encoded"
		})).Return(kgo.ProduceResults{{Record: &kgo.Record{}}})

		err := newTestProducer(t, cl, enc).DispatchStatus(t.Context(), testEvent)
		require.NoError(t, err)
		cl.AssertExpectations(t)
		enc.AssertExpectations(t)
	})

	t.Run("ProduceError", func(t *testing.T) {
		cl := new(MockProducerClient)
		enc := new(MockEncoder)
		errBroker := errors.New("broker is down")

		enc.On("Encode", mock.Anything).Return([]byte("encoded"), nil)
		cl.On("ProduceSync", mock.Anything, mock.Anything).
			Return(kgo.ProduceResults{{Err: errBroker}})

		err := newTestProducer(t, cl, enc).DispatchStatus(t.Context(), testEvent)
		assert.ErrorIs(t, err, errBroker)
	})

	t.Run("EncodeError", func(t *testing.T) {
		cl := new(MockProducerClient)
		enc := new(MockEncoder)
		errEncode := errors.New("bad value")
		enc.On("Encode", mock.Anything).Return(nil, errEncode)

		err := newTestProducer(t, cl, enc).DispatchStatus(t.Context(), testEvent)
		assert.ErrorIs(t, err, errEncode)
		cl.AssertNotCalled(t, "ProduceSync", mock.Anything, mock.Anything)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cl := new(MockProducerClient)
		enc := new(MockEncoder)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := newTestProducer(t, cl, enc).DispatchStatus(ctx, testEvent)
		assert.ErrorIs(t, err, context.Canceled)
		enc.AssertNotCalled(t, "Encode", mock.Anything)
	})

	t.Run("Close", func(t *testing.T) {
		cl := new(MockProducerClient)
		cl.On("Close").Return().Once()
		newTestProducer(t, cl, new(MockEncoder)).Close()
		cl.AssertExpectations(t)
	})

	t.Run("TooFewOpts", func(t *testing.T) {
		assert.Panics(t, func() {
			_, _ = NewStatusProducer(ProducerEncoderOpt(new(MockEncoder)))
		})
	})

	t.Run("NilOpts", func(t *testing.T) {
		_, err := NewStatusProducer(ProducerRawClientOpt(nil), ProducerEncoderOpt(nil))
		assert.Error(t, err)
	})
}

func TestTransactionStatusToSchemaV1(t *testing.T) {
	assert.Equal(t, schema.TransactionStatusV1{
		RefID:      "trx-42",
		SKU:        "xld10",
		Status:     "Sukses",
		Price:      10325,
		ReceivedAt: testEvent.ReceivedAt,
	}, transactionStatusToSchemaV1(testEvent))
}
