// Package grpcapi exposes session state through the standard gRPC health service.
package grpcapi

import (
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"voice-dialogue-service/internal/service/session"
)

// ServiceName is the health service name reporting the session state.
const ServiceName = "voice.dialogue.Session"

// StateNotifier reports session transitions.
type StateNotifier interface {
	State() session.State
	OnStateChange(fn func(session.State))
}

// Register installs the health service on g. The overall service is always
// SERVING; ServiceName is SERVING only while a session is active.
func Register(g *grpc.Server, notifier StateNotifier) *health.Server {
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	hs.SetServingStatus(ServiceName, servingStatus(notifier.State()))
	notifier.OnStateChange(func(s session.State) {
		hs.SetServingStatus(ServiceName, servingStatus(s))
		log.Debug().Str("service", ServiceName).Str("state", s.String()).Msg("Health status updated")
	})
	return hs
}

func servingStatus(s session.State) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s == session.StateActive {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}
