package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X github.com/hellofresh/gdpr-dump/cmd.version=..."
var version = "0.0.0-dev"

// NewVersionCmd creates a new version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information of gdpr-dump",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gdpr-dump %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
