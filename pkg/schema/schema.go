// Package schema holds the avro contracts of the records published to the
// broker and their Schema Registry aware serdes.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/twmb/franz-go/pkg/sr"
)

func AvroEncodeFn(s avro.Schema) func(v any) ([]byte, error) {
	return func(v any) ([]byte, error) {
		return avro.Marshal(s, v)
	}
}

func AvroDecodeFn(s avro.Schema) func([]byte, any) error {
	return func(data []byte, v any) error {
		return avro.Unmarshal(s, data, v)
	}
}

// SchemaIdentifier returns the registry ID of schemaText under subject.
type SchemaIdentifier interface {
	DetermineID(ctx context.Context, subject string, schemaText string) (int, error)
}

type SchemaCreater interface {
	CreateSchema(ctx context.Context, subject string, s sr.Schema) (sr.SubjectSchema, error)
}

// RegistryIdentifier registers avro schemas in the Schema Registry.
// Registering an already known schema returns its existing ID.
type RegistryIdentifier struct {
	sc SchemaCreater
}

func NewRegistryIdentifier(sc SchemaCreater) RegistryIdentifier {
	if sc == nil {
		panic(errors.New("NewRegistryIdentifier: schema creater is nil")) // develop mistake
	}
	return RegistryIdentifier{sc}
}

func (r RegistryIdentifier) DetermineID(
	ctx context.Context, subject string, schemaText string,
) (int, error) {
	const op = "RegistryIdentifier.DetermineID"

	ss, err := r.sc.CreateSchema(ctx, subject, sr.Schema{
		Type:   sr.TypeAvro,
		Schema: schemaText,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return ss.ID, nil
}
