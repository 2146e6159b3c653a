package grpcapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/ethereum/go-ethereum/log"

	"github.com/aabundler/bundler/bundler"
	"github.com/aabundler/bundler/uopool"
	"github.com/aabundler/bundler/validate"
)

// Server hosts the internal UoPool/Bundler gRPC services on a single
// listener, for use by a separate rpcapi process or a p2pgossip peer
// that needs pool/bundler access without the JSON-RPC surface.
type Server struct {
	grpc *grpc.Server
}

// NewServer builds a Server with UoPool registered when pool is
// non-nil, and Bundler registered when bdl is non-nil — a standalone
// "uopool" process has no local bundler to expose, and a standalone
// "bundler" process (spec §6 CLI surface, split topology) sources its
// pool from a remote uopool instead of running one itself.
func NewServer(pool *uopool.Pool, admissionMode validate.Mode, bdl *bundler.Bundler) *Server {
	s := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time: defaultKeepaliveInterval,
	}))
	if pool != nil {
		RegisterUoPoolServer(s, NewUoPoolServer(pool, admissionMode))
	}
	if bdl != nil {
		RegisterBundlerServer(s, NewBundlerServer(bdl))
	}
	return &Server{grpc: s}
}

const defaultKeepaliveInterval = 30_000_000_000 // 30s, in time.Duration's ns units

// ListenAndServe binds addr and serves until Stop is called or the
// listener errors.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("grpcapi: listening", "addr", addr)
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
