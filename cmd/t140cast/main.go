// Command t140cast streams LLM output as real-time text to assistive
// devices over WebSocket or RTP (T.140).
//
// Usage:
//
//	t140cast [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve        - Run the HTTP API and the connection manager
//	device       - Manage devices (list, get, add, update, delete, connect, disconnect)
//	connections  - List live device connections
//	providers    - List LLM providers and their availability
//	stream       - Stream a prompt's completion to one or more devices
//	version      - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/t140cast/cmd/t140cast/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
