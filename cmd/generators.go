package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hellofresh/gdpr-dump/pkg/anonymiser"
)

// NewGeneratorsCmd creates the command listing the synthetic value generators
func NewGeneratorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generators",
		Short: "List the generators usable as generator:<name> replacements",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			RunGenerators(os.Stdout)
		},
	}
}

// RunGenerators writes the name and description of every generator to w
func RunGenerators(w io.Writer) {
	for _, name := range anonymiser.Generators() {
		fmt.Fprintf(w, "%-20s %s\n", name, anonymiser.Describe(name))
	}
}
