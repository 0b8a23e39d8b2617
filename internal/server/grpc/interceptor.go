package grpc

import (
	"context"

	"github.com/google/uuid"
	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const accessTokenKey ctxKey = "accessToken"

const requestIDHeader = "x-request-id"

// publicMethods are served without an access token. Every other method,
// including ones added later, is gated.
var publicMethods = map[string]bool{
	MethodHealth: true,
}

// AccessTokenFromContext returns the token record admitted for the current
// call, if any.
func AccessTokenFromContext(ctx context.Context) (*models.AccessToken, bool) {
	t, ok := ctx.Value(accessTokenKey).(*models.AccessToken)
	return t, ok && t != nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken, requestID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
		if values := md.Get(requestIDHeader); len(values) > 0 {
			requestID = values[0]
		}
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	// only fails outside a real transport stream
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

	logger := s.logger.With("request_id", requestID, "method", info.FullMethod)

	if len(accessToken) == 0 {
		logger.Info(ctx, "missing access token")
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	verdict, err := s.validator.Authorize(ctx, accessToken, s.now())
	if err != nil {
		logger.Error(ctx, "authorization failed", "token", common.Fingerprint(accessToken), "error", err)
		return nil, status.Error(codes.Unavailable, "token store unavailable")
	}
	if !verdict.Admitted {
		logger.Info(ctx, "request denied", "reason", string(verdict.Reason), "token", common.Fingerprint(accessToken))
		return nil, status.Error(codes.PermissionDenied, common.ErrAccessDenied.Error())
	}

	ctx = context.WithValue(ctx, accessTokenKey, verdict.Token)

	return handler(ctx, req)
}
