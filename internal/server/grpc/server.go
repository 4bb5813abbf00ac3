// Package grpc hosts the gRPC listener collaborators plug their services into.
// Every call except the standard health service must carry a valid access
// token; methods may additionally require a policy.
package grpc

import (
	"context"
	"net"
	"sync"

	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator resolves an access token to a session. A nil session with a
// nil error means the token is unknown or expired.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*models.SessionInfo, error)
}

type GRPCServer struct {
	address string
	auth    Authenticator
	logger  logging.Logger
	health  *health.Server

	mu         sync.RWMutex
	policies   map[string]string
	registrars []func(*grpc.Server)
}

func NewGRPCServer(a string, l logging.Logger, auth Authenticator) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		auth:     auth,
		health:   health.NewServer(),
		policies: make(map[string]string),
	}
}

// Register queues a service registration to run when the server starts.
// policies maps full method names ("/pkg.Service/Method") to the policy a
// caller's role must hold; methods not listed only need a valid token.
func (s *GRPCServer) Register(register func(*grpc.Server), policies map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registrars = append(s.registrars, register)
	for method, policy := range policies {
		s.policies[method] = policy
	}
}

func (s *GRPCServer) requiredPolicy(method string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[method]
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is canceled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	healthpb.RegisterHealthServer(srv, s.health)

	s.mu.RLock()
	for _, register := range s.registrars {
		register(srv)
	}
	s.mu.RUnlock()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
