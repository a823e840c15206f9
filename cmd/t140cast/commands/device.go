package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/t140cast/pkg/cli"
	"github.com/haivivi/t140cast/pkg/device"
)

var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"devices", "dev"},
	Short:   "Manage registered devices",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var recs []*device.Record
		if err := c.do(cmd.Context(), http.MethodGet, "/api/devices", nil, &recs); err != nil {
			return err
		}
		return output(cmd, deviceTable(recs))
	},
}

var deviceGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var rec device.Record
		if err := c.do(cmd.Context(), http.MethodGet, devicePath(args[0]), nil, &rec); err != nil {
			return err
		}
		return output(cmd, &rec)
	},
}

var (
	addFile       string
	addName       string
	addType       string
	addHost       string
	addPort       int
	addProtocol   string
	addRateLimit  int
	addBackspaces bool
)

var deviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a device",
	Long: `Register a device from flags or from a JSON/YAML file.

The port defaults to t140.websocket_port or t140.rtp_port from the config,
depending on the protocol.

Examples:
  t140cast device add --name Reader1 --type visual --host 10.0.0.5 --protocol rtp
  t140cast device add -f reader.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var spec device.Spec
		if addFile != "" {
			if err := cli.LoadRequest(addFile, &spec); err != nil {
				return err
			}
		} else {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			spec = device.Spec{
				Name:     addName,
				Type:     addType,
				Host:     addHost,
				Port:     addPort,
				Protocol: addProtocol,
			}
			if spec.Port == 0 {
				spec.Port = cfg.T140.DefaultPort(spec.Protocol)
			}
			spec.Settings.CharacterRateLimit = addRateLimit
			if cmd.Flags().Changed("backspaces") {
				spec.Settings.BackspaceProcessing = &addBackspaces
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		var rec device.Record
		if err := c.do(cmd.Context(), http.MethodPost, "/api/devices", &spec, &rec); err != nil {
			return err
		}
		if formatOutput == string(cli.FormatTable) {
			cli.PrintSuccess(cmd.OutOrStdout(), "created device %s (%s)", rec.ID, rec.Name)
			return nil
		}
		return output(cmd, &rec)
	},
}

var (
	updateFile       string
	updateName       string
	updateType       string
	updateHost       string
	updatePort       int
	updateProtocol   string
	updateRateLimit  int
	updateBackspaces bool
)

var deviceUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a device",
	Long: `Change a device. Only the flags given are sent; settings are replaced
as a whole when --rate-limit or --backspaces is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch device.Patch
		if updateFile != "" {
			if err := cli.LoadRequest(updateFile, &patch); err != nil {
				return err
			}
		} else {
			f := cmd.Flags()
			if f.Changed("name") {
				patch.Name = &updateName
			}
			if f.Changed("type") {
				patch.Type = &updateType
			}
			if f.Changed("host") {
				patch.Host = &updateHost
			}
			if f.Changed("port") {
				patch.Port = &updatePort
			}
			if f.Changed("protocol") {
				patch.Protocol = &updateProtocol
			}
			if f.Changed("rate-limit") || f.Changed("backspaces") {
				s := device.Settings{CharacterRateLimit: updateRateLimit}
				if f.Changed("backspaces") {
					s.BackspaceProcessing = &updateBackspaces
				}
				patch.Settings = &s
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		var rec device.Record
		if err := c.do(cmd.Context(), http.MethodPut, devicePath(args[0]), &patch, &rec); err != nil {
			return err
		}
		return output(cmd, &rec)
	},
}

var deviceDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a device, disconnecting it first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.do(cmd.Context(), http.MethodDelete, devicePath(args[0]), nil, nil); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "deleted device %s", args[0])
		return nil
	},
}

type connectReply struct {
	Message     string        `json:"message"`
	Status      device.Status `json:"status,omitempty"`
	ConnectedAt *time.Time    `json:"connectedAt,omitempty"`
}

var deviceConnectCmd = &cobra.Command{
	Use:   "connect <id>",
	Short: "Open the device transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectOrDisconnect(cmd, args[0], "connect")
	},
}

var deviceDisconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "Close the device transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectOrDisconnect(cmd, args[0], "disconnect")
	},
}

func connectOrDisconnect(cmd *cobra.Command, id, action string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var reply connectReply
	if err := c.do(cmd.Context(), http.MethodPost, devicePath(id)+"/"+action, nil, &reply); err != nil {
		return err
	}
	if formatOutput != string(cli.FormatTable) {
		return output(cmd, &reply)
	}
	if action == "connect" {
		cli.PrintSuccess(cmd.OutOrStdout(), "%s: %s", id, styles.Status(reply.Status.String()))
		printVerbose(cmd, "%s", reply.Message)
		return nil
	}
	cli.PrintSuccess(cmd.OutOrStdout(), "%s: %s", id, reply.Message)
	return nil
}

func devicePath(id string) string {
	return "/api/devices/" + url.PathEscape(id)
}

// printVerbose writes to the command's error stream when -v is set.
func printVerbose(cmd *cobra.Command, format string, args ...any) {
	cli.PrintVerbose(cmd.ErrOrStderr(), IsVerbose(), format, args...)
}

func init() {
	f := deviceAddCmd.Flags()
	f.StringVarP(&addFile, "file", "f", "", "read the device from a JSON or YAML file (- for stdin)")
	f.StringVar(&addName, "name", "", "display name")
	f.StringVar(&addType, "type", "", fmt.Sprintf("device type %v", device.Types))
	f.StringVar(&addHost, "host", "", "device IP address or host name")
	f.IntVar(&addPort, "port", 0, "device port (default from config)")
	f.StringVar(&addProtocol, "protocol", "rtp", fmt.Sprintf("transport protocol %v", device.Protocols))
	f.IntVar(&addRateLimit, "rate-limit", 0, "characters per second over RTP (0 for the server default)")
	f.BoolVar(&addBackspaces, "backspaces", true, "apply backspaces before sending")
	deviceAddCmd.MarkFlagsMutuallyExclusive("file", "name")

	f = deviceUpdateCmd.Flags()
	f.StringVarP(&updateFile, "file", "f", "", "read the patch from a JSON or YAML file (- for stdin)")
	f.StringVar(&updateName, "name", "", "display name")
	f.StringVar(&updateType, "type", "", "device type")
	f.StringVar(&updateHost, "host", "", "device IP address or host name")
	f.IntVar(&updatePort, "port", 0, "device port")
	f.StringVar(&updateProtocol, "protocol", "", "transport protocol")
	f.IntVar(&updateRateLimit, "rate-limit", 0, "characters per second over RTP")
	f.BoolVar(&updateBackspaces, "backspaces", true, "apply backspaces before sending")

	deviceCmd.AddCommand(deviceListCmd, deviceGetCmd, deviceAddCmd, deviceUpdateCmd,
		deviceDeleteCmd, deviceConnectCmd, deviceDisconnectCmd)
	rootCmd.AddCommand(deviceCmd)
}
