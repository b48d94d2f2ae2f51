package grpccas

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ocid"
	"xdao.co/ocid/digest"
	"xdao.co/ocid/storage"
)

// Client implements storage.CAS over a CAS gRPC service.
//
// Returned bytes and IDs are verified locally against the client's digest
// algorithm; the server is not trusted.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient
	alg    digest.Algorithm

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var (
	_ storage.CAS    = (*Client)(nil)
	_ storage.Lister = (*Client)(nil)
)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Digest is the algorithm the client verifies with (BLAKE3 when zero).
	Digest digest.Algorithm

	// Extra options appended after the defaults.
	Options []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Options...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc, opts.Digest), nil
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn, alg digest.Algorithm) *Client {
	return &Client{cc: cc, client: NewCASClient(cc), alg: alg.OrDefault()}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// CheckDigest fails when the server addresses content with a different
// algorithm than the client verifies with.
func (c *Client) CheckDigest() error {
	ctx, cancel := c.ctx()
	defer cancel()
	reply, err := c.client.Digest(ctx, &emptypb.Empty{})
	if err != nil {
		return mapRPC(err)
	}
	remote, err := digest.Lookup(reply.GetValue())
	if err != nil {
		return fmt.Errorf("%w: %q", errUnknownDigest, reply.GetValue())
	}
	if remote.Name != c.alg.Name {
		return fmt.Errorf("grpccas: server digest %s, client digest %s", remote.Name, c.alg.Name)
	}
	return nil
}

func (c *Client) Put(data []byte) (ocid.V0, error) {
	if c == nil || c.client == nil {
		return ocid.V0{}, storage.ErrNotFound
	}
	expected, err := storage.Address(data, c.alg)
	if err != nil {
		return ocid.V0{}, err
	}

	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return ocid.V0{}, mapRPC(err)
	}
	var id ocid.V0
	if err := id.UnmarshalBinary(reply.GetValue()); err != nil {
		return ocid.V0{}, storage.ErrInvalidID
	}
	if id != expected {
		return ocid.V0{}, storage.ErrIDMismatch
	}
	return id, nil
}

func (c *Client) Get(id ocid.V0) ([]byte, error) {
	if id.IsEmpty() {
		return nil, storage.ErrInvalidID
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Get(ctx, rawID(id))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := storage.Verify(id, b, c.alg); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Has(id ocid.V0) bool {
	if id.IsEmpty() {
		return false
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Has(ctx, rawID(id))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

// List fetches the server's ID listing. A backend without listing support
// surfaces as a gRPC Unimplemented error.
func (c *Client) List() ([]ocid.V0, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.List(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	ids, err := ocid.SplitV0(reply.GetValue())
	if err != nil {
		return nil, fmt.Errorf("grpccas: list: %w", err)
	}
	return ids, nil
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}
