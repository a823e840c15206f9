package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/t140cast/cmd/t140cast/internal/config"
	"github.com/haivivi/t140cast/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	configPath   string
	formatOutput string
	serverURL    string

	// Global configuration (loaded at init time)
	globalConfig  *config.Config
	configLoadErr error
)

var rootCmd = &cobra.Command{
	Use:   "t140cast",
	Short: "Stream LLM text to assistive devices",
	Long: `t140cast - real-time text delivery to assistive devices.

Devices are registered with an address and a protocol (websocket or rtp).
Once connected, the completion of a prompt is streamed to them as it is
generated, character-paced per RFC 4103 over RTP.

Run the server:
  t140cast serve --config config.yaml

Manage it from another shell:
  t140cast device add --name Reader1 --type visual --host 10.0.0.5 --protocol rtp
  t140cast device connect <id>
  t140cast stream --prompt "Describe the room" <id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&configPath, "config", "", "config file (default ~/.t140cast/config.yaml)")
	pf.StringVarP(&formatOutput, "output", "o", "table", "output format: table, json or yaml")
	pf.StringVar(&serverURL, "server", "", "API base URL (default http://localhost:<server.port>)")
}

func initConfig() {
	path, optional := configPath, false
	if path == "" {
		if p, err := cli.NewPaths(); err == nil {
			path, optional = p.ConfigFile(), true
		}
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		// Reported by commands that need the config, so that
		// 'version' still works with a broken file.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		return config.Default(), nil
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func output(cmd *cobra.Command, v any) error {
	return cli.Output(v, cli.OutputOptions{
		Format: cli.OutputFormat(formatOutput),
		Writer: cmd.OutOrStdout(),
	})
}
