package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aabundler/bundler/bundler"
)

// SetModeRequest switches the bundler between automatic and manual
// triggering (spec §4.H debug_bundler_setBundlingMode, mirrored here
// for in-process/internal callers that do not go through JSON-RPC).
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// SendBundleNowReply carries the submitted bundle transaction's hash.
type SendBundleNowReply struct {
	Hash common.Hash `json:"hash"`
}

// BundlerServer is the internal Bundler service (spec §6).
type BundlerServer interface {
	SetMode(ctx context.Context, req *SetModeRequest) (*Empty, error)
	SendBundleNow(ctx context.Context, req *Empty) (*SendBundleNowReply, error)
}

type bundlerServer struct {
	b *bundler.Bundler
}

// NewBundlerServer builds the gRPC-facing adapter over b.
func NewBundlerServer(b *bundler.Bundler) BundlerServer { return &bundlerServer{b: b} }

func (s *bundlerServer) SetMode(ctx context.Context, req *SetModeRequest) (*Empty, error) {
	switch req.Mode {
	case "auto":
		s.b.SetMode(bundler.ModeAuto)
	case "manual":
		s.b.SetMode(bundler.ModeManual)
	default:
		return nil, fmt.Errorf("grpcapi: bundling mode must be \"auto\" or \"manual\", got %q", req.Mode)
	}
	return &Empty{}, nil
}

func (s *bundlerServer) SendBundleNow(ctx context.Context, req *Empty) (*SendBundleNowReply, error) {
	hash, err := s.b.SendBundleNow(ctx)
	if err != nil {
		return nil, err
	}
	return &SendBundleNowReply{Hash: hash}, nil
}

// RegisterBundlerServer wires srv into s using the hand-rolled JSON codec.
func RegisterBundlerServer(s *grpc.Server, srv BundlerServer) {
	s.RegisterService(&bundlerServiceDesc, srv)
}

var bundlerServiceDesc = grpc.ServiceDesc{
	ServiceName: "aabundler.bundler.Bundler",
	HandlerType: (*BundlerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SetMode",
			Handler: unaryHandler[SetModeRequest, Empty]("/aabundler.bundler.Bundler/SetMode",
				func(ctx context.Context, srv interface{}, req *SetModeRequest) (*Empty, error) {
					return srv.(BundlerServer).SetMode(ctx, req)
				}),
		},
		{
			MethodName: "SendBundleNow",
			Handler: unaryHandler[Empty, SendBundleNowReply]("/aabundler.bundler.Bundler/SendBundleNow",
				func(ctx context.Context, srv interface{}, req *Empty) (*SendBundleNowReply, error) {
					return srv.(BundlerServer).SendBundleNow(ctx, req)
				}),
		},
	},
	Metadata: "bundler.proto",
}
