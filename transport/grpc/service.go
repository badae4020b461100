package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const deliverMethod = "/raftsim.Delivery/Deliver"

// DeliveryServer is the server API for the raftsim.Delivery service.
// A request is one encoded param.Message; the reply carries nothing because
// mailbox delivery is fire-and-forget.
type DeliveryServer interface {
	Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeliveryServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeliveryServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var deliveryServiceDesc = grpc.ServiceDesc{
	ServiceName: "raftsim.Delivery",
	HandlerType: (*DeliveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftsim/delivery.proto",
}

// RegisterDeliveryServer registers srv with s.
func RegisterDeliveryServer(s grpc.ServiceRegistrar, srv DeliveryServer) {
	s.RegisterService(&deliveryServiceDesc, srv)
}

func invokeDeliver(ctx context.Context, conn grpc.ClientConnInterface, req *structpb.Struct) error {
	return conn.Invoke(ctx, deliverMethod, req, new(emptypb.Empty))
}
