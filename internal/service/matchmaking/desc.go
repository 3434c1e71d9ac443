package matchmaking

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "matchmaking.v1.MatchService"

// Every method takes and returns a google.protobuf.Struct; field names are
// snake_case and ids are decimal strings.
const (
	MethodRecordAction              = "RecordAction"
	MethodGetRecommendations        = "GetRecommendations"
	MethodGetCompatibility          = "GetCompatibility"
	MethodInvalidateRecommendations = "InvalidateRecommendations"
	MethodListMatches               = "ListMatches"
	MethodUnmatch                   = "Unmatch"
	MethodGetSceneStats             = "GetSceneStats"
	MethodGetSchedulerStatus        = "GetSchedulerStatus"
	MethodTriggerJob                = "TriggerJob"
)

// MatchServiceServer is the server API of matchmaking.v1.MatchService.
type MatchServiceServer interface {
	RecordAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecommendations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCompatibility(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InvalidateRecommendations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unmatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSceneStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSchedulerStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TriggerJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(MatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return m(srv.(MatchServiceServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, call)
		},
	}
}

// MatchServiceDesc describes the service for grpc.Server.RegisterService.
var MatchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRecordAction, MatchServiceServer.RecordAction),
		unary(MethodGetRecommendations, MatchServiceServer.GetRecommendations),
		unary(MethodGetCompatibility, MatchServiceServer.GetCompatibility),
		unary(MethodInvalidateRecommendations, MatchServiceServer.InvalidateRecommendations),
		unary(MethodListMatches, MatchServiceServer.ListMatches),
		unary(MethodUnmatch, MatchServiceServer.Unmatch),
		unary(MethodGetSceneStats, MatchServiceServer.GetSceneStats),
		unary(MethodGetSchedulerStatus, MatchServiceServer.GetSchedulerStatus),
		unary(MethodTriggerJob, MatchServiceServer.TriggerJob),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchmaking/v1/match_service.proto",
}

// Client calls MatchService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with fields as the request body.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
