package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/twmb/franz-go/pkg/sr"
)

var (
	ErrTooFewOpts = errors.New("too few options")
)

// Serde frames avro payloads with the Schema Registry wire header.
type Serde interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

type serde struct {
	avroSchema avro.Schema
	srSerde    *sr.Serde
}

func (s serde) Encode(v any) ([]byte, error) {
	return s.srSerde.Encode(v)
}

func (s serde) Decode(data []byte, v any) error {
	return s.srSerde.Decode(data, v)
}

// Opt configures a serde. [SubjectOpt] and [SchemaIdentifierOpt] are both
// required.
type Opt func(*serdeOpts) error

type serdeOpts struct {
	subject string
	si      SchemaIdentifier
}

func (o serdeOpts) complete() bool {
	return o.subject != "" && o.si != nil
}

func SubjectOpt(subject string) Opt {
	return func(so *serdeOpts) error {
		if subject == "" {
			return errors.New("subject is empty string")
		}
		so.subject = subject
		return nil
	}
}

func SchemaIdentifierOpt(si SchemaIdentifier) Opt {
	return func(so *serdeOpts) error {
		if si == nil {
			return errors.New("schema identifier is nil")
		}
		so.si = si
		return nil
	}
}

// NewSerdeTransactionStatusV1 registers [TransactionStatusSchemaTextV1]
// under the subject and returns a serde for [TransactionStatusV1].
func NewSerdeTransactionStatusV1(ctx context.Context, opts ...Opt) (Serde, error) {
	const op = "NewSerdeTransactionStatusV1"

	s, err := newSerde(
		ctx, TransactionStatusSchemaTextV1, TransactionStatusV1{}, opts,
	)
	if err != nil {
		return serde{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func newSerde(
	ctx context.Context, schemaText string, example any, opts []Opt,
) (serde, error) {
	var o serdeOpts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return serde{}, err
		}
	}
	if !o.complete() {
		return serde{}, ErrTooFewOpts
	}

	avroSchema, err := avro.Parse(schemaText)
	if err != nil {
		return serde{}, err
	}

	id, err := o.si.DetermineID(ctx, o.subject, schemaText)
	if err != nil {
		return serde{}, err
	}

	srSerde := new(sr.Serde)
	srSerde.Register(
		id,
		example,
		sr.EncodeFn(AvroEncodeFn(avroSchema)),
		sr.DecodeFn(AvroDecodeFn(avroSchema)),
	)

	return serde{avroSchema: avroSchema, srSerde: srSerde}, nil
}
