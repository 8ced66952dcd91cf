package server

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	PresenceServiceName                           = "relay.v1.PresenceService"
	PresenceService_Snapshot_FullMethodName       = "/" + PresenceServiceName + "/Snapshot"
	PresenceService_GetParticipant_FullMethodName = "/" + PresenceServiceName + "/GetParticipant"
	PresenceService_Stats_FullMethodName          = "/" + PresenceServiceName + "/Stats"
)

// PresenceServiceServer is the read-only admin surface of the relay.
// Messages are well-known protobuf types so no generated code is needed.
type PresenceServiceServer interface {
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetParticipant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterPresenceServiceServer(s grpc.ServiceRegistrar, srv PresenceServiceServer) {
	s.RegisterService(&PresenceService_ServiceDesc, srv)
}

var PresenceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: PresenceServiceName,
	HandlerType: (*PresenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
		{MethodName: "GetParticipant", Handler: getParticipantHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relay/v1/presence.proto",
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceService_Snapshot_FullMethodName}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServiceServer).Snapshot(ctx, req.(*emptypb.Empty))
	})
}

func getParticipantHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServiceServer).GetParticipant(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceService_GetParticipant_FullMethodName}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServiceServer).GetParticipant(ctx, req.(*structpb.Struct))
	})
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServiceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceService_Stats_FullMethodName}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServiceServer).Stats(ctx, req.(*emptypb.Empty))
	})
}

type PresenceServer struct {
	presence contract.PresenceReader
}

func NewPresenceServer(presence contract.PresenceReader) *PresenceServer {
	return &PresenceServer{presence: presence}
}

// Snapshot returns every known participant keyed by id.
func (s *PresenceServer) Snapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snapshot := lo.MapValues(s.presence.Snapshot(), func(entry domain.PresenceEntry, _ string) any {
		return entryFields(entry)
	})
	res, err := structpb.NewStruct(snapshot)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return res, nil
}

// GetParticipant expects {"participantId": "..."}.
func (s *PresenceServer) GetParticipant(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	participantID := in.GetFields()["participantId"].GetStringValue()
	if participantID == "" {
		return nil, errors.MapToGRPCError(fmt.Errorf("participantId: %w", errors.ErrIdentityMissing))
	}
	entry, err := s.presence.Participant(participantID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	fields := entryFields(entry)
	fields["participantId"] = participantID
	res, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return res, nil
}

func (s *PresenceServer) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.presence.Stats()
	res, err := structpb.NewStruct(map[string]any{
		"connections":     stats.Connections,
		"rooms":           stats.Rooms,
		"online":          stats.Online,
		"known":           stats.Known,
		"trackedMessages": stats.TrackedMessages,
		"queued":          stats.Queued,
		"queueCapacity":   stats.QueueCapacity,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return res, nil
}

func entryFields(entry domain.PresenceEntry) map[string]any {
	return map[string]any{
		"username": entry.DisplayName,
		"status":   string(entry.Status),
	}
}
