// Package rpc exposes the digest archiver as a network collaborator over
// gRPC, so a scheduler can submit a dump path without linking against
// internal/archive directly — the one place hprofkit has a network server
// boundary (§5: the core hprof package itself has none).
//
// No .proto file backs this service: the wire messages are the protobuf
// library's own pre-compiled well-known types
// (google.golang.org/protobuf/types/known/{wrapperspb,structpb}), registered
// against a hand-built grpc.ServiceDesc rather than protoc-generated stubs.
package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wroldwiedbwe/hprofkit/internal/archive"
)

// ArchiveServer implements the ArchiveService RPC by delegating to an
// *archive.Archiver, adapted from the teacher's internal/service.Service
// lifecycle wiring: one collaborator (here, the Archiver) driven by a thin
// transport-facing shell.
type ArchiveServer struct {
	archiver *archive.Archiver
}

// NewArchiveServer wraps archiver for RPC use.
func NewArchiveServer(archiver *archive.Archiver) *ArchiveServer {
	return &ArchiveServer{archiver: archiver}
}

// Submit runs archive.Archiver.Run for the path carried in req, and returns
// the resulting Digest as a structpb.Struct: file identity plus the
// per-class rollup, under snake_case keys (file_id, path, id_size,
// dump_count, and per class name, category, instance_count, shallow_bytes)
// rather than archive.Digest's Go field names.
func (s *ArchiveServer) Submit(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	path := req.GetValue()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path must not be empty")
	}

	digest, fileID, err := s.archiver.Run(ctx, path)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("archive failed: %v", err))
	}

	classes := make([]interface{}, 0, len(digest.Classes))
	for _, c := range digest.Classes {
		classes = append(classes, map[string]interface{}{
			"name":           c.Name,
			"category":       c.Category,
			"instance_count": float64(c.InstanceCount),
			"shallow_bytes":  float64(c.ShallowBytes),
		})
	}

	result, err := structpb.NewStruct(map[string]interface{}{
		"file_id":    float64(fileID),
		"path":       digest.File.Path,
		"id_size":    float64(digest.File.IDSize),
		"dump_count": float64(digest.File.DumpCount),
		"classes":    classes,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode digest: %v", err))
	}
	return result, nil
}

// submitHandler adapts grpc's generated-stub calling convention (decode
// request, invoke the method, encode response) by hand, since no protoc
// output exists to generate it for us.
func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(wrapperspb.StringValue)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*ArchiveServer).Submit(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ServiceName + "/Submit",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*ArchiveServer).Submit(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceName is the fully-qualified gRPC service name ArchiveServer is
// registered under.
const ServiceName = "hprofkit.archive.ArchiveService"

// serviceDesc is the hand-built equivalent of a protoc-generated
// _ArchiveService_serviceDesc: one unary method, Submit.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*archiveServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Submit",
			Handler:    submitHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hprofkit/archive.proto",
}

// archiveServiceServer exists only to give serviceDesc.HandlerType a type to
// name; grpc uses it solely for the interface-assertion registration check,
// never to call through it directly (submitHandler calls ArchiveServer's
// method directly instead).
type archiveServiceServer interface {
	Submit(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegisterArchiveServiceServer registers srv against s, the way a
// protoc-generated RegisterArchiveServiceServer function would.
func RegisterArchiveServiceServer(s grpc.ServiceRegistrar, srv *ArchiveServer) {
	s.RegisterService(&serviceDesc, srv)
}
