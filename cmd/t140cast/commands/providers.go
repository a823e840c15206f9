package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/haivivi/t140cast/pkg/assist"
	"github.com/haivivi/t140cast/pkg/cli"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM providers and whether they can be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var p assist.Providers
		if err := c.do(cmd.Context(), http.MethodGet, "/api/llm/providers", nil, &p); err != nil {
			return err
		}
		if formatOutput == string(cli.FormatTable) {
			return output(cmd, providerTable(p))
		}
		return output(cmd, &p)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
