package schema

import (
	"time"

	"github.com/hamba/avro/v2"
)

const TransactionStatusSchemaTextV1 = `{
	"type": "record",
	"namespace": "pricesync",
	"name": "transaction_status",
	"fields" : [
		{"name": "ref_id", "type": "string"},
		{"name": "customer_no", "type": "string"},
		{"name": "buyer_sku_code", "type": "string"},
		{"name": "status", "type": "string"},
		{"name": "message", "type": "string"},
		{"name": "rc", "type": "string"},
		{"name": "sn", "type": "string"},
		{"name": "price", "type": "double"},
		{"name": "received_at", "type": {"type": "long", "logicalType": "timestamp-millis"}}
	]
}`

type TransactionStatusV1 struct {
	RefID      string    `avro:"ref_id"`
	CustomerNo string    `avro:"customer_no"`
	SKU        string    `avro:"buyer_sku_code"`
	Status     string    `avro:"status"`
	Message    string    `avro:"message"`
	RC         string    `avro:"rc"`
	SN         string    `avro:"sn"`
	Price      float64   `avro:"price"`
	ReceivedAt time.Time `avro:"received_at"`
}

// TransactionStatusV1Avro panics if the schema text is broken.
func TransactionStatusV1Avro() avro.Schema {
	return avro.MustParse(TransactionStatusSchemaTextV1)
}
