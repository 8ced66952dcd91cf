package client

import (
	"chat-relay/grpc/server"
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type PresenceClient struct {
	conn grpc.ClientConnInterface
}

func NewPresenceClient(conn grpc.ClientConnInterface) *PresenceClient {
	return &PresenceClient{conn: conn}
}

func (c *PresenceClient) Snapshot(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.PresenceService_Snapshot_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *PresenceClient) GetParticipant(ctx context.Context, participantID string, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(map[string]any{"participantId": participantID})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.PresenceService_GetParticipant_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *PresenceClient) Stats(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, server.PresenceService_Stats_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
