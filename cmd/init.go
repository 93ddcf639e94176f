package cmd

import (
	"bufio"
	"os"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hellofresh/gdpr-dump/pkg/config"
)

// NewInitCmd creates a new init command
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a fresh config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := configFile
			if name == "" {
				name = config.DefaultConfigFileName
			}

			return RunInit(name)
		},
	}

	return cmd
}

// RunInit writes a sample config file, it never overwrites an existing one
func RunInit(name string) error {
	log.Infof("Initializing %s", name)

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return stacktrace.NewError("config file %s already exists, refusing to overwrite", name)
	}
	if err != nil {
		return stacktrace.Propagate(err, "could not create the file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := config.WriteSample(w); err != nil {
		return stacktrace.Propagate(err, "could not encode config")
	}
	if err := w.Flush(); err != nil {
		return stacktrace.Propagate(err, "could not write config")
	}

	log.Infof("Created %s!", name)
	return nil
}
