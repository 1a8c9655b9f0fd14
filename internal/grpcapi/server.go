// Package grpcapi serves the submission gateway over gRPC, alongside the
// standard health service.
package grpcapi

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"carevault.org/internal/auth"
	"carevault.org/internal/ledger"
	"carevault.org/internal/obs"
	"carevault.org/internal/submit"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Server implements SubmissionService and grpc.health.v1.Health.
type Server struct {
	grpc_health_v1.UnimplementedHealthServer

	gateway   *submit.Gateway
	tokens    *auth.Tokens
	readiness readinessChecker
}

// New creates the gRPC service wrapper.
func New(gw *submit.Gateway, tokens *auth.Tokens, r readinessChecker) *Server {
	return &Server{gateway: gw, tokens: tokens, readiness: r}
}

// NewGRPCServer builds a grpc.Server with the auth interceptor and both
// services registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.authenticate))
	g := grpc.NewServer(opts...)
	RegisterSubmissionServer(g, s)
	grpc_health_v1.RegisterHealthServer(g, s)
	return g
}

// Submit decodes an {op, args} struct, submits it as the authenticated
// caller and returns the receipt as a struct.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing caller")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "InvalidArgs: %v", err)
	}
	var op submit.Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "InvalidArgs: %v", err)
	}

	rcpt, err := s.gateway.Submit(ctx, ledger.Address(caller), op)
	if err != nil {
		return nil, toStatus(err)
	}

	body, err := json.Marshal(rcpt)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode receipt")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, status.Error(codes.Internal, "encode receipt")
	}
	return out, nil
}

// Check evaluates readiness for any service name.
func (s *Server) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			obs.SetReady(false)
			return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	obs.SetReady(true)
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

// authenticate resolves the bearer token in the authorization metadata. The
// health service stays open for probes.
func (s *Server) authenticate(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
		return handler(ctx, req)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if vals := md.Get("authorization"); len(vals) > 0 {
		header = vals[0]
	}
	caller, err := s.tokens.Authenticate(header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(auth.ContextWithCaller(ctx, caller), req)
}
