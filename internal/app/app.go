package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "voice-dialogue-service/internal/api/grpc"
	"voice-dialogue-service/internal/config"
	"voice-dialogue-service/internal/events"
	apphttp "voice-dialogue-service/internal/http"
	"voice-dialogue-service/internal/observability"
	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/session"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	controller *session.Controller
	publisher  *events.Publisher
	hub        *apphttp.Hub
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	obsServer  *observability.Server
	closers    []func() error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	a := &Application{
		Cfg: cfg,
		Logger: logging.Logger().With().
			Str("component", "application").
			Logger(),
	}
	a.Logger.Info().
		Str("logLevel", cfg.Observability.LogLevel).
		Str("captureBackend", cfg.Capture.Backend).
		Str("sttProvider", cfg.STT.Provider).
		Str("dialogueProvider", cfg.Dialogue.Provider).
		Msg("Voice dialogue service application created")
	return a
}

// Controller returns the session controller once Start has run.
func (a *Application) Controller() *session.Controller {
	return a.controller
}

// Start wires the pipeline, starts the servers and, if configured, activates
// the session. A missing workspace id aborts startup.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().Str("method", "Start").Logger()
	a.StartupTime = time.Now().UTC()

	store, err := config.LoadStore(a.Cfg.Service.ConfigFile)
	if err != nil {
		return err
	}
	workspaceID, err := config.WorkspaceID(store)
	if err != nil {
		return err
	}

	if err := a.buildPipeline(ctx, workspaceID); err != nil {
		return err
	}
	if err := a.startServers(); err != nil {
		return err
	}

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("workspaceId", workspaceID).
		Msg("Voice dialogue service started")

	if a.Cfg.Service.ActivateOnStart {
		if err := a.controller.Start(ctx); err != nil {
			startLogger.Error().Err(err).Msg("Session not activated; use POST /v1/session/start to retry")
		}
	}
	return nil
}

func (a *Application) buildPipeline(ctx context.Context, workspaceID string) error {
	device, err := NewDevice(a.Cfg.Capture)
	if err != nil {
		return err
	}
	if a.Cfg.Capture.Backend == "malgo" {
		logDevices(a.Logger)
	}

	recognizer, closeRecognizer, err := NewRecognizer(ctx, a.Cfg.STT, a.Cfg.Capture.SampleRate)
	if err != nil {
		return err
	}
	if closeRecognizer != nil {
		a.closers = append(a.closers, closeRecognizer)
	}

	client, err := NewDialogueClient(ctx, a.Cfg.Dialogue)
	if err != nil {
		return err
	}

	a.publisher = events.New(&events.Config{
		Enabled:          a.Cfg.Kafka.Enabled,
		Brokers:          a.Cfg.Kafka.Brokers,
		TopicTranscripts: a.Cfg.Kafka.TopicTranscripts,
		TopicTurns:       a.Cfg.Kafka.TopicTurns,
		Principal:        a.Cfg.Kafka.Principal,
	})
	a.hub = apphttp.NewHub()

	sessionCfg := session.Config{
		DeviceID:      a.Cfg.Capture.DeviceID,
		BufferSeconds: a.Cfg.Capture.BufferSeconds,
		SampleRate:    a.Cfg.Capture.SampleRate,
		WorkspaceID:   workspaceID,
		Recognition:   a.Cfg.STT.RecognitionOptions(),
		Dispatch: dialogue.DispatcherConfig{
			MaxInFlight: a.Cfg.Dialogue.MaxInFlight,
			Timeout:     a.Cfg.Dialogue.Timeout,
		},
	}
	engine := audio.NewEngine(device, nil, metrics.DefaultMetrics)
	a.controller = session.NewController(sessionCfg, engine, recognizer, client, nil, metrics.DefaultMetrics, a.publisher, a.hub)
	return nil
}

func (a *Application) startServers() error {
	m := metrics.DefaultMetrics

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	a.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	a.health = grpcapi.Register(a.grpcServer, a.controller)
	reflection.Register(a.grpcServer)

	go func() {
		a.Logger.Info().Str("port", a.Cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := a.grpcServer.Serve(lis); err != nil {
			a.Logger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	a.httpServer = &http.Server{
		Addr:              ":" + a.Cfg.Service.HTTPPort,
		Handler:           apphttp.NewRouter(a.controller, a.hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info().Str("port", a.Cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	a.obsServer = observability.NewServer(":"+a.Cfg.Observability.MetricsPort, func() bool {
		return a.controller.State() == session.StateActive
	})
	a.obsServer.Start()
	return nil
}

// Shutdown deactivates the session and stops every server. Errors are
// collected rather than short-circuiting.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().Str("method", "Shutdown").Logger()
	shutdownLogger.Info().Msg("Voice dialogue service shutting down")

	var result *multierror.Error
	if a.health != nil {
		a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	if a.controller != nil {
		if err := a.controller.Stop(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop session: %w", err))
		}
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown http: %w", err))
		}
	}
	if a.obsServer != nil {
		if err := a.obsServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown observability: %w", err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close publisher: %w", err))
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func logDevices(logger zerolog.Logger) {
	devices, err := audio.ListDevices()
	if err != nil {
		logger.Warn().Err(err).Msg("Unable to list capture devices")
		return
	}
	for _, d := range devices {
		logger.Info().Str("name", d.Name).Bool("default", d.IsDefault).Msg("Capture device")
	}
}
