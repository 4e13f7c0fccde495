package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时注入
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsgarden",
		Short: "WebSocket container with a demo echo endpoint",
		Long: `wsgarden hosts WebSocket endpoints behind an HTTP router.

The serve command mounts the container under /ws and exposes an echo
endpoint at /ws/echo/{room}. The dial command connects to any WebSocket
server through the same container and prints the replies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		dialCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wsgarden %s (%s)\n", version, commit)
		},
	}
}
