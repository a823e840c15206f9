package commands

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/haivivi/t140cast/pkg/cli"
	"github.com/haivivi/t140cast/pkg/fanout"
)

var (
	streamPrompt   string
	streamProvider string
)

type streamReply struct {
	Message  string          `json:"message,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Results  []fanout.Result `json:"results,omitempty"`
}

var streamCmd = &cobra.Command{
	Use:   "stream <device-id>...",
	Short: "Stream a prompt's completion to one or more devices",
	Long: `Stream the completion of a prompt to connected devices.

With one device the server reports success once delivery has started.
With several, each device gets its own result and the command fails only
when none of them could be reached.

Examples:
  t140cast stream --prompt "Describe the room" 3f2a...
  t140cast stream --provider anthropic --prompt "Read the sign" dev1 dev2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if streamPrompt == "" {
			return errors.New("--prompt is required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			var reply streamReply
			body := map[string]string{"prompt": streamPrompt, "provider": streamProvider}
			path := "/api/llm/stream/" + url.PathEscape(args[0])
			if err := c.do(cmd.Context(), http.MethodPost, path, body, &reply); err != nil {
				return err
			}
			if formatOutput != string(cli.FormatTable) {
				return output(cmd, &reply)
			}
			cli.PrintSuccess(cmd.OutOrStdout(), "%s (provider %s)", reply.Message, reply.Provider)
			return nil
		}

		var reply streamReply
		body := map[string]any{"deviceIds": args, "prompt": streamPrompt, "provider": streamProvider}
		if err := c.do(cmd.Context(), http.MethodPost, "/api/llm/stream-multiple", body, &reply); err != nil {
			return err
		}
		if formatOutput != string(cli.FormatTable) {
			return output(cmd, &reply)
		}
		for _, r := range reply.Results {
			if !r.Success {
				cli.PrintWarning(cmd.ErrOrStderr(), "%s: %s", r.DeviceID, r.Reason)
			}
		}
		return output(cmd, resultTable(reply.Results))
	},
}

func init() {
	f := streamCmd.Flags()
	f.StringVarP(&streamPrompt, "prompt", "p", "", "prompt to complete")
	f.StringVar(&streamProvider, "provider", "", "LLM provider (default from server config)")
	rootCmd.AddCommand(streamCmd)
}
