package grpcapi

import (
	"context"
	"fmt"
	"math/big"

	"google.golang.org/grpc"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aabundler/bundler/reputation"
	"github.com/aabundler/bundler/uop"
	"github.com/aabundler/bundler/uopool"
	"github.com/aabundler/bundler/validate"
)

// wireOp is the internal gRPC facade's wire shape of a UserOperation,
// matching the 0x-hex wire convention rpcapi uses on the public
// JSON-RPC surface (spec §6) so a value decoded off of one facade
// round-trips through the other without re-encoding.
type wireOp struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func (w *wireOp) toOp() (*uop.UserOperation, error) {
	if w == nil {
		return nil, fmt.Errorf("grpcapi: missing user operation")
	}
	if w.Nonce == nil || w.CallGasLimit == nil || w.VerificationGasLimit == nil ||
		w.PreVerificationGas == nil || w.MaxFeePerGas == nil || w.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("grpcapi: user operation missing a required gas/nonce field")
	}
	return &uop.UserOperation{
		Sender:               w.Sender,
		Nonce:                (*big.Int)(w.Nonce),
		InitCode:             []byte(w.InitCode),
		CallData:             []byte(w.CallData),
		CallGasLimit:         (*big.Int)(w.CallGasLimit),
		VerificationGasLimit: (*big.Int)(w.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(w.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(w.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(w.MaxPriorityFeePerGas),
		PaymasterAndData:     []byte(w.PaymasterAndData),
		Signature:            []byte(w.Signature),
	}, nil
}

func fromOp(op *uop.UserOperation) *wireOp {
	return &wireOp{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(op.Nonce),
		InitCode:             hexutil.Bytes(op.InitCode),
		CallData:             hexutil.Bytes(op.CallData),
		CallGasLimit:         (*hexutil.Big)(op.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(op.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(op.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(op.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexutil.Bytes(op.PaymasterAndData),
		Signature:            hexutil.Bytes(op.Signature),
	}
}

// AddRequest is the wire shape of one UoPool/Add call.
type AddRequest struct {
	EntryPoint common.Address `json:"entryPoint"`
	Op         *wireOp        `json:"userOperation"`
}

// AddReply carries the admitted operation's canonical hash.
type AddReply struct {
	Hash common.Hash `json:"hash"`
}

// RemoveRequest names one mempool entry by hash.
type RemoveRequest struct {
	Hash common.Hash `json:"hash"`
}

// RemoveReply reports whether the entry existed.
type RemoveReply struct {
	Removed bool `json:"removed"`
}

// GetRequest names one mempool entry by hash, for the
// eth_getUserOperationByHash/Receipt lookups an out-of-process rpcapi
// needs to serve against a remote pool.
type GetRequest struct {
	Hash common.Hash `json:"hash"`
}

// GetReply carries the entry if found.
type GetReply struct {
	Found bool       `json:"found"`
	Entry *wireEntry `json:"userOperation,omitempty"`
}

// GetSortedReply carries the pool's priority-ordered, per-sender-deduped view.
type GetSortedReply struct {
	Entries []*wireEntry `json:"entries"`
}

// RankedCandidatesRequest bounds the candidate-preview pass to Limit
// entries.
type RankedCandidatesRequest struct {
	Limit int `json:"limit"`
}

// RankedCandidatesReply carries the approximately fee-ordered,
// per-sender-deduped candidate-preview prefix.
type RankedCandidatesReply struct {
	Entries []*wireEntry `json:"entries"`
}

// wireEntry is the gRPC wire shape of one mempool entry.
type wireEntry struct {
	Hash common.Hash `json:"hash"`
	Op   *wireOp     `json:"userOperation"`
}

// ReputationReply carries every known reputation row.
type ReputationReply struct {
	Entries []reputation.Entry `json:"entries"`
}

// SetReputationRequest overwrites/creates reputation rows wholesale.
type SetReputationRequest struct {
	Entries []reputation.Entry `json:"entries"`
}

// UoPoolServer is the internal UoPool service (spec §6): it is what a
// separate rpcapi or p2pgossip process talks to so the pool itself can
// run out-of-process from the RPC facade.
type UoPoolServer interface {
	Add(ctx context.Context, req *AddRequest) (*AddReply, error)
	Remove(ctx context.Context, req *RemoveRequest) (*RemoveReply, error)
	Get(ctx context.Context, req *GetRequest) (*GetReply, error)
	GetSorted(ctx context.Context, req *Empty) (*GetSortedReply, error)
	RankedCandidates(ctx context.Context, req *RankedCandidatesRequest) (*RankedCandidatesReply, error)
	Clear(ctx context.Context, req *Empty) (*Empty, error)
	DumpReputation(ctx context.Context, req *Empty) (*ReputationReply, error)
	SetReputation(ctx context.Context, req *SetReputationRequest) (*Empty, error)
}

// Empty is a nullary request/response, mirroring google.protobuf.Empty
// for the methods that carry no payload.
type Empty struct{}

// uoPoolServer adapts a *uopool.Pool to UoPoolServer.
type uoPoolServer struct {
	pool *uopool.Pool
	mode validate.Mode
}

// NewUoPoolServer builds the gRPC-facing adapter over pool, validating
// every admitted op in mode (spec §4.F/§6).
func NewUoPoolServer(pool *uopool.Pool, mode validate.Mode) UoPoolServer {
	return &uoPoolServer{pool: pool, mode: mode}
}

func (s *uoPoolServer) Add(ctx context.Context, req *AddRequest) (*AddReply, error) {
	op, err := req.Op.toOp()
	if err != nil {
		return nil, err
	}
	hash, err := s.pool.Add(ctx, op, s.mode)
	if err != nil {
		return nil, err
	}
	return &AddReply{Hash: hash}, nil
}

func (s *uoPoolServer) Remove(ctx context.Context, req *RemoveRequest) (*RemoveReply, error) {
	return &RemoveReply{Removed: s.pool.Remove(req.Hash)}, nil
}

func (s *uoPoolServer) Get(ctx context.Context, req *GetRequest) (*GetReply, error) {
	entry, ok := s.pool.Get(req.Hash)
	if !ok {
		return &GetReply{Found: false}, nil
	}
	return &GetReply{Found: true, Entry: &wireEntry{Hash: entry.Hash, Op: fromOp(entry.Op)}}, nil
}

func (s *uoPoolServer) GetSorted(ctx context.Context, req *Empty) (*GetSortedReply, error) {
	entries := s.pool.GetSorted()
	out := make([]*wireEntry, len(entries))
	for i, e := range entries {
		out[i] = &wireEntry{Hash: e.Hash, Op: fromOp(e.Op)}
	}
	return &GetSortedReply{Entries: out}, nil
}

func (s *uoPoolServer) RankedCandidates(ctx context.Context, req *RankedCandidatesRequest) (*RankedCandidatesReply, error) {
	entries := s.pool.RankedCandidates(req.Limit)
	out := make([]*wireEntry, len(entries))
	for i, e := range entries {
		out[i] = &wireEntry{Hash: e.Hash, Op: fromOp(e.Op)}
	}
	return &RankedCandidatesReply{Entries: out}, nil
}

func (s *uoPoolServer) Clear(ctx context.Context, req *Empty) (*Empty, error) {
	s.pool.Clear()
	return &Empty{}, nil
}

func (s *uoPoolServer) DumpReputation(ctx context.Context, req *Empty) (*ReputationReply, error) {
	return &ReputationReply{Entries: s.pool.DumpReputation()}, nil
}

func (s *uoPoolServer) SetReputation(ctx context.Context, req *SetReputationRequest) (*Empty, error) {
	s.pool.SetReputation(req.Entries)
	return &Empty{}, nil
}

// unaryHandler builds a grpc.MethodDesc.Handler for a single-request,
// single-reply method, decoding into a fresh *Req and dispatching
// through call — the same shape protoc-gen-go-grpc emits per RPC, kept
// generic here since no .proto toolchain runs in this environment.
func unaryHandler[Req any, Resp any](fullMethod string, call func(ctx context.Context, srv interface{}, req *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, srv, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, srv, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// RegisterUoPoolServer wires srv into s using the hand-rolled JSON
// codec (see codec.go).
func RegisterUoPoolServer(s *grpc.Server, srv UoPoolServer) {
	s.RegisterService(&uoPoolServiceDesc, srv)
}

var uoPoolServiceDesc = grpc.ServiceDesc{
	ServiceName: "aabundler.uopool.UoPool",
	HandlerType: (*UoPoolServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Add",
			Handler: unaryHandler[AddRequest, AddReply]("/aabundler.uopool.UoPool/Add",
				func(ctx context.Context, srv interface{}, req *AddRequest) (*AddReply, error) {
					return srv.(UoPoolServer).Add(ctx, req)
				}),
		},
		{
			MethodName: "Remove",
			Handler: unaryHandler[RemoveRequest, RemoveReply]("/aabundler.uopool.UoPool/Remove",
				func(ctx context.Context, srv interface{}, req *RemoveRequest) (*RemoveReply, error) {
					return srv.(UoPoolServer).Remove(ctx, req)
				}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler[GetRequest, GetReply]("/aabundler.uopool.UoPool/Get",
				func(ctx context.Context, srv interface{}, req *GetRequest) (*GetReply, error) {
					return srv.(UoPoolServer).Get(ctx, req)
				}),
		},
		{
			MethodName: "GetSorted",
			Handler: unaryHandler[Empty, GetSortedReply]("/aabundler.uopool.UoPool/GetSorted",
				func(ctx context.Context, srv interface{}, req *Empty) (*GetSortedReply, error) {
					return srv.(UoPoolServer).GetSorted(ctx, req)
				}),
		},
		{
			MethodName: "RankedCandidates",
			Handler: unaryHandler[RankedCandidatesRequest, RankedCandidatesReply]("/aabundler.uopool.UoPool/RankedCandidates",
				func(ctx context.Context, srv interface{}, req *RankedCandidatesRequest) (*RankedCandidatesReply, error) {
					return srv.(UoPoolServer).RankedCandidates(ctx, req)
				}),
		},
		{
			MethodName: "Clear",
			Handler: unaryHandler[Empty, Empty]("/aabundler.uopool.UoPool/Clear",
				func(ctx context.Context, srv interface{}, req *Empty) (*Empty, error) {
					return srv.(UoPoolServer).Clear(ctx, req)
				}),
		},
		{
			MethodName: "DumpReputation",
			Handler: unaryHandler[Empty, ReputationReply]("/aabundler.uopool.UoPool/DumpReputation",
				func(ctx context.Context, srv interface{}, req *Empty) (*ReputationReply, error) {
					return srv.(UoPoolServer).DumpReputation(ctx, req)
				}),
		},
		{
			MethodName: "SetReputation",
			Handler: unaryHandler[SetReputationRequest, Empty]("/aabundler.uopool.UoPool/SetReputation",
				func(ctx context.Context, srv interface{}, req *SetReputationRequest) (*Empty, error) {
					return srv.(UoPoolServer).SetReputation(ctx, req)
				}),
		},
	},
	Metadata: "uopool.proto",
}
