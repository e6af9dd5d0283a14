package kafka

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
)

var _ port.StatusProducer = (*StatusProducer)(nil)

// A producer is used for composition.
//
// Producing records to kafka broker and closing underlying [kgo.Client].
type producer struct {
	opPrefix string
	cl       ProducerClient
}

func (p producer) close() {
	const op = "close"
	log := slog.With("op", makeOp(p.opPrefix, op))
	log.Info("closing producer...")
	p.cl.Close()
	log.Info("producer is closed")
}

func (p producer) produce(
	ctx context.Context, rs ...*kgo.Record,
) error {
	const op = "produce"
	res := p.cl.ProduceSync(ctx, rs...)
	if err := res.FirstErr(); err != nil {
		return opErr(err, p.opPrefix, op)
	}
	return nil
}

// A StatusProducer publishes accepted transaction statuses keyed by ref_id,
// so every status of one transaction lands in the same partition.
type StatusProducer struct {
	producer producer
	encoder  Encoder
	opPrefix string
}

func NewStatusProducer(opts ...ProducerOpt) (StatusProducer, error) {
	const op = "NewStatusProducer"

	if len(opts) != 2 {
		panic(opErr(ErrTooFewOpts, op)) // develop mistake
	}

	var options producerOpts
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return StatusProducer{}, opErr(err, op)
		}
	}

	opPrefix := "StatusProducer"
	return StatusProducer{
		producer: producer{opPrefix: opPrefix, cl: options.cl},
		encoder:  options.encoder,
		opPrefix: opPrefix,
	}, nil
}

func (p StatusProducer) Close() {
	p.producer.close()
}

func (p StatusProducer) DispatchStatus(
	ctx context.Context, e domain.WebhookEvent,
) error {
	const op = "DispatchStatus"

	if err := ctx.Err(); err != nil {
		return opErr(err, p.opPrefix, op)
	}

	r, err := p.createRecord(e)
	if err != nil {
		return opErr(err, p.opPrefix, op)
	}

	if err := p.producer.produce(ctx, r); err != nil {
		return opErr(err, p.opPrefix, op)
	}
	return nil
}

func (p StatusProducer) createRecord(e domain.WebhookEvent) (*kgo.Record, error) {
	const op = "createRecord"

	s := transactionStatusToSchemaV1(e)
	b, err := p.encoder.Encode(s)
	if err != nil {
		return nil, opErr(err, p.opPrefix, op)
	}
	return &kgo.Record{Key: []byte(s.RefID), Value: b}, nil
}
