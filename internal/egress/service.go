package egress

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region service-desc
const (
	serviceName     = "inputengine.v1.ControlEgress"
	methodPhenotype = "/" + serviceName + "/Phenotype"
	methodStats     = "/" + serviceName + "/Stats"
	methodStream    = "/" + serviceName + "/Stream"
)

// ControlEgressServer is the service implemented by Server. Messages are
// well-known protobuf types so no generated code is needed.
type ControlEgressServer interface {
	Phenotype(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stream(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ControlEgressServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Phenotype", Handler: unaryHandler(methodPhenotype, ControlEgressServer.Phenotype)},
		{MethodName: "Stats", Handler: unaryHandler(methodStats, ControlEgressServer.Stats)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "inputengine/v1/egress.proto",
}

func unaryHandler(method string, call func(ControlEgressServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlEgressServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlEgressServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlEgressServer).Stream(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv ControlEgressServer) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion service-desc

// #region server
// Source is the session state the service reports on.
type Source interface {
	Current() phenotype.Phenotype
	Stats() engine.Stats
}

// SessionSource adapts an engine session to Source.
type SessionSource struct{ *engine.Session }

// Current returns the phenotype in force for the session.
func (s SessionSource) Current() phenotype.Phenotype {
	return s.Session.Store().Current()
}

// Server streams hub controls and reports on the attached session.
type Server struct {
	hub    *Hub
	source atomic.Pointer[Source]
	logger *slog.Logger
}

var _ ControlEgressServer = (*Server)(nil)

// NewServer creates a server streaming from hub.
func NewServer(hub *Hub) *Server {
	return &Server{hub: hub, logger: logging.New("egress")}
}

// Attach sets the session reported by Phenotype and Stats.
func (s *Server) Attach(src Source) {
	s.source.Store(&src)
}

func (s *Server) attached() (Source, error) {
	src := s.source.Load()
	if src == nil {
		return nil, status.Error(codes.Unavailable, "no session attached")
	}
	return *src, nil
}

// Phenotype returns the phenotype in force.
func (s *Server) Phenotype(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	src, err := s.attached()
	if err != nil {
		return nil, err
	}
	out, err := PhenotypeStruct(src.Current())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode phenotype: %v", err)
	}
	return out, nil
}

// Stats returns the session counters.
func (s *Server) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	src, err := s.attached()
	if err != nil {
		return nil, err
	}
	out, err := StatsStruct(src.Stats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
	}
	return out, nil
}

// Stream sends controls until the client goes away or the hub closes.
func (s *Server) Stream(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	sub := s.hub.Subscribe()
	defer sub.Close()
	ctx := stream.Context()
	s.logger.Info("stream opened")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stream closed", "dropped", sub.Dropped())
			return nil
		case c, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, err := c.Struct()
			if err != nil {
				return status.Errorf(codes.Internal, "encode control: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return fmt.Errorf("send control %d: %w", c.Seq, err)
			}
		}
	}
}

// #endregion server
