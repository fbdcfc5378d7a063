package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ArchiveServiceClient calls a remote ArchiveServer, built the same way the
// server side is: a hand-written Invoke wrapper standing in for a
// protoc-generated client stub.
type ArchiveServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewArchiveServiceClient wraps an established connection.
func NewArchiveServiceClient(cc grpc.ClientConnInterface) *ArchiveServiceClient {
	return &ArchiveServiceClient{cc: cc}
}

// Submit calls the remote ArchiveService.Submit method with path.
func (c *ArchiveServiceClient) Submit(ctx context.Context, path string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req := wrapperspb.String(path)
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ServiceName+"/Submit", req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
