package mint

import (
	"context"

	"google.golang.org/grpc"

	"github.com/paynet-mint/node/internal/rpcutil"
)

// Wire request/response shapes for the admin RPC, following the same
// plain-struct-over-JSON-codec approach as the signer's hand-rolled
// service — there's exactly one operation here, so one request/response
// pair is all this surface needs.

type RotateKeysetsRequest struct{}

type RotateKeysetsResponse struct {
	NewKeysetIds []string
}

// AdminServer adapts a *Mint to the admin gRPC wire shapes.
type AdminServer struct {
	mint *Mint
}

func NewAdminServer(m *Mint) *AdminServer { return &AdminServer{mint: m} }

func (s *AdminServer) RotateKeysets(ctx context.Context, _ *RotateKeysetsRequest) (*RotateKeysetsResponse, error) {
	ids, err := s.mint.RotateKeysets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return &RotateKeysetsResponse{NewKeysetIds: out}, nil
}

// AdminServiceDesc is the hand-built grpc.ServiceDesc standing in for
// what protoc would otherwise generate, following internal/signer/rpc.go's
// established pattern for this codebase's non-protobuf gRPC services.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "paynet.mint.Admin",
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RotateKeysets", Handler: rotateKeysetsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/mint/adminrpc.go",
}

func rotateKeysetsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RotateKeysetsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*AdminServer).RotateKeysets(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/paynet.mint.Admin/RotateKeysets"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*AdminServer).RotateKeysets(ctx, req.(*RotateKeysetsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminClient is a thin wrapper issuing the admin RPC over a
// *grpc.ClientConn opted into the JSON codec — used by cmd/mintadmin.
type AdminClient struct {
	conn *grpc.ClientConn
}

func NewAdminClient(conn *grpc.ClientConn) *AdminClient { return &AdminClient{conn: conn} }

func (c *AdminClient) call(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, "/paynet.mint.Admin/"+method, req, resp, grpc.CallContentSubtype(rpcutil.CodecName))
}

func (c *AdminClient) RotateKeysets(ctx context.Context) (*RotateKeysetsResponse, error) {
	resp := new(RotateKeysetsResponse)
	if err := c.call(ctx, "RotateKeysets", &RotateKeysetsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
