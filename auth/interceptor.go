package auth

import (
	"context"
	"live-chat/contract"
	"live-chat/domain"
	"live-chat/errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const identityKey contextKey = "identity"

const authorizationHeader = "authorization"

// IdentityFromContext returns the identity injected by the interceptors.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// OutgoingContext attaches the identity token as a bearer authorization header.
func OutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
}

// BearerToken extracts the token of an incoming "Bearer <token>" authorization header.
func BearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
}

func authenticate(ctx context.Context, resolver contract.IdentityResolver) (context.Context, error) {
	identity, err := resolver.Resolve(ctx, BearerToken(ctx))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return WithIdentity(ctx, identity), nil
}

// UnaryInterceptor resolves the bearer token of every unary call and injects the identity into the context.
func UnaryInterceptor(resolver contract.IdentityResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		newCtx, err := authenticate(ctx, resolver)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamInterceptor does the same for streaming calls.
func StreamInterceptor(resolver contract.IdentityResolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		newCtx, err := authenticate(ss.Context(), resolver)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: newCtx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}
