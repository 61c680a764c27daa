package grpc

import (
	"google.golang.org/grpc"
)

// ExchangeServer is the hand-written equivalent of a protoc-gen-go-grpc
// server interface for a single bidirectional-streaming method: frames in
// (commands/binary queries), frames out (results/binary responses), both
// already encoded per §6.
type ExchangeServer interface {
	Stream(ExchangeStreamServer) error
}

// ExchangeStreamServer is the per-call stream handle passed to
// ExchangeServer.Stream, mirroring the shape generated code produces for a
// bidi-streaming RPC.
type ExchangeStreamServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type exchangeStreamServer struct {
	grpc.ServerStream
}

func (x *exchangeStreamServer) Send(f *Frame) error {
	return x.ServerStream.SendMsg(f)
}

func (x *exchangeStreamServer) Recv() (*Frame, error) {
	f := new(Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func exchangeStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ExchangeServer).Stream(&exchangeStreamServer{ServerStream: stream})
}

// ServiceDesc registers the Exchange service's single Stream method; it is
// the manual equivalent of what protoc-gen-go-grpc would emit from a
// one-rpc .proto, kept hand-written since this service has no protobuf
// message types to generate from (see codec.go).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "exchange.v1.Exchange",
	HandlerType: (*ExchangeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       exchangeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "exchange_transport.proto",
}

// Register attaches srv to s under ServiceDesc.
func Register(s *grpc.Server, srv ExchangeServer) {
	s.RegisterService(&ServiceDesc, srv)
}
