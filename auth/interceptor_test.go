package auth_test

import (
	"context"
	"live-chat/auth"
	"live-chat/domain"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestUnaryInterceptor(t *testing.T) {
	resolver := auth.NewStaticResolver(map[string]domain.Identity{
		"tok-alice": {Subject: "u-1", DisplayName: "Alice S."},
	})
	interceptor := auth.UnaryInterceptor(resolver)
	info := &grpc.UnaryServerInfo{FullMethod: "/livechat.ChatService/PostMessage"}

	// Setup a dummy handler that returns the context it received
	dummyHandler := func(ctx context.Context, req any) (any, error) {
		return ctx, nil
	}

	t.Run("should fail when metadata is missing", func(t *testing.T) {
		req := require.New(t)

		_, err := interceptor(context.Background(), nil, info, dummyHandler)

		st, ok := status.FromError(err)
		req.True(ok)
		req.Equal(codes.Unauthenticated, st.Code())
	})

	t.Run("should fail with unknown token", func(t *testing.T) {
		req := require.New(t)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer tok-bob"))

		_, err := interceptor(ctx, nil, info, dummyHandler)

		req.Equal(codes.Unauthenticated, status.Code(err))
	})

	t.Run("should inject identity when token is valid", func(t *testing.T) {
		req := require.New(t)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer tok-alice"))

		resCtx, err := interceptor(ctx, nil, info, dummyHandler)

		req.NoError(err)
		identity, ok := auth.IdentityFromContext(resCtx.(context.Context))
		req.True(ok)
		req.Equal("Alice S.", identity.DisplayName)
	})
}

func TestStreamInterceptor(t *testing.T) {
	req := require.New(t)
	interceptor := auth.StreamInterceptor(auth.NewStaticResolver(nil))
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer Alice S."))

	var seen domain.Identity
	err := interceptor(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{},
		func(_ any, stream grpc.ServerStream) error {
			seen, _ = auth.IdentityFromContext(stream.Context())
			return nil
		})

	req.NoError(err)
	req.Equal("Alice S.", seen.DisplayName)

	// And a stream without token is rejected before reaching the handler
	err = interceptor(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{},
		func(any, grpc.ServerStream) error {
			req.Fail("handler must not be called")
			return nil
		})
	req.Equal(codes.Unauthenticated, status.Code(err))
}

func TestOutgoingContext_Roundtrip(t *testing.T) {
	req := require.New(t)
	out := auth.OutgoingContext(context.Background(), "tok-alice")
	md, ok := metadata.FromOutgoingContext(out)
	req.True(ok)

	in := metadata.NewIncomingContext(context.Background(), md)
	req.Equal("tok-alice", auth.BearerToken(in))
}
