// Package grpc is the exchange's one external network edge: a gRPC
// service that ferries the already-specified binary wire frames (§6
// "Binary framing") between a remote producer/consumer and the pipeline,
// using a custom passthrough codec instead of protobuf-generated message
// types, since the wire format this service carries is already fully
// specified by §6 and gains nothing from a second, protobuf-shaped
// envelope around it.
package grpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "raw"

// Frame is the payload type the raw codec passes through unmodified.
type Frame []byte

// rawCodec implements encoding.Codec by copying bytes straight off the
// wire, with no protobuf/json marshaling step, for the already-encoded
// binary command/query frames this service exists to carry.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("grpc: raw codec cannot marshal %T", v)
	}
	return []byte(*f), nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("grpc: raw codec cannot unmarshal into %T", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
