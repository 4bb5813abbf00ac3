package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const sessionKey ctxKey = "session"

const healthServicePrefix = "/grpc.health.v1.Health/"

// SessionFromContext returns the session attached by the access-token
// interceptor.
func SessionFromContext(ctx context.Context) (*models.SessionInfo, bool) {
	s, ok := ctx.Value(sessionKey).(*models.SessionInfo)
	return s, ok && s != nil
}

func accessTokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return values[0]
	}
	if values := md.Get("authorization"); len(values) > 0 {
		if token, ok := common.BearerToken(values[0]); ok {
			return token
		}
	}
	return ""
}

// authorize validates the caller's token for method and returns the context
// the handler should run with.
func (s *GRPCServer) authorize(ctx context.Context, method string) (context.Context, error) {
	if strings.HasPrefix(method, healthServicePrefix) {
		return ctx, nil
	}

	accessToken := accessTokenFromContext(ctx)
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	session, err := s.auth.ValidateToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, common.ErrPersistence) {
			s.logger.Error(ctx, "token validation unavailable", "method", method, "error", err)
			return nil, status.Error(codes.Unavailable, "credential store unavailable")
		}
		s.logger.Error(ctx, "token validation failed", "method", method, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	if session == nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if policy := s.requiredPolicy(method); policy != "" && !session.HasPolicy(policy) {
		s.logger.Warn(ctx, "policy denied", "method", method, "user_id", session.UserID, "policy", policy)
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}

	return context.WithValue(ctx, sessionKey, session), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authorize(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authorizedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authorizedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authorize(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authorizedStream{ServerStream: ss, ctx: ctx})
}
