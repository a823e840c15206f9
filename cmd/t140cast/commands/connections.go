package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/haivivi/t140cast/pkg/httpapi"
)

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conns"},
	Short:   "List live device connections",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var views []httpapi.ConnectionView
		if err := c.do(cmd.Context(), http.MethodGet, "/api/devices/connections/active", nil, &views); err != nil {
			return err
		}
		return output(cmd, connectionTable(views))
	},
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
}
