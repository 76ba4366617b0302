// Package health exposes pipeline liveness over the standard gRPC health service
package health

import (
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/NovaGlider/musicboom/internal/trace"
)

// Reported services. The empty name is the server as a whole.
const (
	ServiceDevice  = "musicboom.device"
	ServiceCapture = "musicboom.capture"
)

// Watch streams only end when the client goes away, so graceful stop is bounded.
const stopGrace = 2 * time.Second

var services = []string{"", ServiceDevice, ServiceCapture}

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a server with every service NOT_SERVING.
func New() *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs}
	s.SetAll(false)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// SetServing updates one service.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// SetAll updates every service.
func (s *Server) SetAll(serving bool) {
	for _, svc := range services {
		s.SetServing(svc, serving)
	}
}

// Track reports the given services, or all of them when none are named,
// as NOT_SERVING once done closes.
func (s *Server) Track(done <-chan struct{}, service ...string) {
	go func() {
		<-done
		if len(service) == 0 {
			s.SetAll(false)
			return
		}
		for _, svc := range service {
			s.SetServing(svc, false)
		}
	}()
}

// Stop marks everything NOT_SERVING and waits briefly for in-flight calls
// before closing remaining connections.
func (s *Server) Stop() {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.grpc.Stop()
	}
}
