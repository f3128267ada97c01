package gatewaygrpc

import "google.golang.org/grpc"

const (
	serviceName   = "attackdeck.gateway.Executor"
	channelMethod = "/" + serviceName + "/Channel"
)

// channelServer is the handler type registered for the Executor service.
// Messages on the channel are google.protobuf.Struct values in both
// directions.
type channelServer interface {
	Channel(stream grpc.ServerStream) error
}

var channelStreamDesc = grpc.StreamDesc{
	StreamName:    "Channel",
	ServerStreams: true,
	ClientStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*channelServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    channelStreamDesc.StreamName,
		Handler:       channelHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "attackdeck/gateway.proto",
}

func channelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(channelServer).Channel(stream)
}
