// Command starcall runs the consultation client headless: it connects
// the session channel, keeps the request and waitlist state machines
// live, and prints every user-facing surface change to the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"starcall/internal/app"
	"starcall/internal/config"
	"starcall/pkg/types"
)

var version = "dev"

var (
	configPath string
	userID     string
	sessionID  string
	authToken  string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "starcall",
		Short: "Consultation lifecycle client",
		Long: "starcall keeps a user's consultation requests, waitlist entries, and\n" +
			"active session synchronized with the backend over a reconnecting\n" +
			"session channel.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and run until interrupted",
		RunE:  runClient,
	}
	runCmd.Flags().StringVar(&userID, "user", os.Getenv("STARCALL_USER_ID"), "authenticated user id")
	runCmd.Flags().StringVar(&sessionID, "session", os.Getenv("STARCALL_SESSION_ID"), "session id issued at login")
	runCmd.Flags().StringVar(&authToken, "token", os.Getenv("STARCALL_TOKEN"), "bearer token issued at login")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("starcall %s\n", version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	setupLogging()

	if userID == "" || sessionID == "" || authToken == "" {
		return fmt.Errorf("user, session, and token are required (flags or STARCALL_* env)")
	}

	cfg := config.LoadConfigWithPrecedence(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	session := types.UserSession{UserID: userID, SessionID: sessionID}
	presenter := newConsolePresenter()

	application, err := app.NewApplication(cfg, session, authToken, presenter, presenter)
	if err != nil {
		return err
	}
	application.OnMessage = presenter.printMessage
	application.OnAIChunk = presenter.printChunk

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	runErr := application.Start(ctx)

	if err := application.Stop(); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
