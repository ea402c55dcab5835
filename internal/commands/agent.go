package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/culture-union/checkpulse/pkg/agent"
)

var (
	agentServerURL string
	agentAPIKey    string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run as a remote check agent",
	Long: `Connect to a CheckPulse server over WebSocket and execute checks
pushed by it. The agent authenticates with the api key handed out when
it was registered, and reconnects automatically when the connection
drops.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentServerURL, "server-url", "", "server WebSocket URL (overrides config)")
	agentCmd.Flags().StringVar(&agentAPIKey, "api-key", "", "agent api key (overrides config)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	serverURL := cfg.Agent.ServerURL
	if agentServerURL != "" {
		serverURL = agentServerURL
	}
	apiKey := cfg.Agent.APIKey
	if agentAPIKey != "" {
		apiKey = agentAPIKey
	}

	a, err := agent.New(agent.Options{
		ServerURL:    serverURL,
		APIKey:       apiKey,
		CheckTimeout: cfg.Checks.Timeout,
		ReconnectMin: cfg.Agent.ReconnectMin,
		ReconnectMax: cfg.Agent.ReconnectMax,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	fmt.Printf("Starting CheckPulse agent against %s\n", serverURL)

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("agent error: %w", err)
	}
	return nil
}
