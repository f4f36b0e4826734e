package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const operatorServiceName = "squadquiz.v1.OperatorService"

// OperatorServer is the operator-facing gRPC service. Requests and responses are
// google.protobuf.Struct documents; see convert.go for their fields.
type OperatorServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var operatorServiceDesc = grpc.ServiceDesc{
	ServiceName: operatorServiceName,
	HandlerType: (*OperatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unaryHandler("CreateSession", OperatorServer.CreateSession)},
		{MethodName: "ListSessions", Handler: unaryHandler("ListSessions", OperatorServer.ListSessions)},
		{MethodName: "GetSession", Handler: unaryHandler("GetSession", OperatorServer.GetSession)},
		{MethodName: "GetLeaderboard", Handler: unaryHandler("GetLeaderboard", OperatorServer.GetLeaderboard)},
		{MethodName: "GetResult", Handler: unaryHandler("GetResult", OperatorServer.GetResult)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "squadquiz/v1/operator.proto",
}

func RegisterOperatorServer(s grpc.ServiceRegistrar, srv OperatorServer) {
	s.RegisterService(&operatorServiceDesc, srv)
}

func unaryHandler[T any](method string, call func(OperatorServer, context.Context, *T) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(T)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(OperatorServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + operatorServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(OperatorServer), ctx, req.(*T))
		})
	}
}

// OperatorClient calls the operator service.
type OperatorClient struct {
	cc grpc.ClientConnInterface
}

func NewOperatorClient(cc grpc.ClientConnInterface) *OperatorClient {
	return &OperatorClient{cc: cc}
}

func (c *OperatorClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+operatorServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OperatorClient) CreateSession(ctx context.Context, req CreateSessionRequest, opts ...grpc.CallOption) (*Session, error) {
	in, err := structpb.NewStruct(map[string]any{
		"team_count":       req.TeamCount,
		"players_per_team": req.PlayersPerTeam,
		"question_count":   req.QuestionCount,
	})
	if err != nil {
		return nil, err
	}

	out, err := c.invoke(ctx, "CreateSession", in, opts...)
	if err != nil {
		return nil, err
	}
	return sessionFromStruct(out), nil
}

func (c *OperatorClient) ListSessions(ctx context.Context, opts ...grpc.CallOption) ([]*Session, error) {
	out, err := c.invoke(ctx, "ListSessions", &emptypb.Empty{}, opts...)
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for _, v := range out.GetFields()["sessions"].GetListValue().GetValues() {
		sessions = append(sessions, sessionFromStruct(v.GetStructValue()))
	}
	return sessions, nil
}

func (c *OperatorClient) GetSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*Session, error) {
	out, err := c.invoke(ctx, "GetSession", sessionRequest(sessionID), opts...)
	if err != nil {
		return nil, err
	}
	return sessionFromStruct(out), nil
}

func (c *OperatorClient) GetLeaderboard(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*Leaderboard, error) {
	out, err := c.invoke(ctx, "GetLeaderboard", sessionRequest(sessionID), opts...)
	if err != nil {
		return nil, err
	}
	return leaderboardFromStruct(out), nil
}

func (c *OperatorClient) GetResult(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*Result, error) {
	out, err := c.invoke(ctx, "GetResult", sessionRequest(sessionID), opts...)
	if err != nil {
		return nil, err
	}
	return resultFromStruct(out), nil
}
