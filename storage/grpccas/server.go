package grpccas

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
//
// Algorithm is the digest CAS addresses with; clients compare it with their
// own before trusting returned IDs.
type Server struct {
	UnimplementedCASServer
	CAS       storage.CAS
	Algorithm digest.Algorithm
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := s.CAS.Put(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return rawID(id), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeID(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	l, ok := s.CAS.(storage.Lister)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "backend does not support listing")
	}
	ids, err := l.List()
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(ocid.JoinV0(ids...)), nil
}

func (s *Server) Digest(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	_ = ctx
	return wrapperspb.String(s.Algorithm.OrDefault().Name), nil
}

func decodeID(b []byte) (ocid.V0, error) {
	var id ocid.V0
	if err := id.UnmarshalBinary(b); err != nil || id.IsEmpty() {
		return ocid.V0{}, status.Error(codes.InvalidArgument, storage.ErrInvalidID.Error())
	}
	return id, nil
}

// rawID wraps the raw bytes of id for the wire.
func rawID(id ocid.V0) *wrapperspb.BytesValue {
	b := id.Bytes()
	return wrapperspb.Bytes(b[:])
}
