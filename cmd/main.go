package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"voice-dialogue-service/internal/app"
	"voice-dialogue-service/internal/config"
	"voice-dialogue-service/internal/service/audio"
)

const shutdownTimeout = 15 * time.Second

var (
	Root = &cobra.Command{
		Use:          "voicepipe",
		Short:        "Microphone to speech recognition to dialogue pipeline",
		SilenceUsage: true,
	}

	Serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the service and activate the capture session",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	}

	Devices = &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.ExactArgs(0),
		RunE:  devices,
	}
)

func init() {
	Serve.Flags().Bool("inactive", false, "start with the session inactive")
	Root.AddCommand(Serve, Devices)
}

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if inactive, _ := cmd.Flags().GetBool("inactive"); inactive {
		cfg.Service.ActivateOnStart = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	application := app.New(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown finished with errors")
		return err
	}
	return nil
}

func devices(cmd *cobra.Command, _ []string) error {
	list, err := audio.ListDevices()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range list {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\t%s\n", marker, d.Name, d.ID)
	}
	return nil
}
