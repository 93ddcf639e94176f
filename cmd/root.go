package cmd

import (
	"os"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/formatter"
)

var (
	configFile string
	verbose    bool

	// RootCmd dumps databases with personal data masked
	RootCmd = &cobra.Command{
		Use:   "gdpr-dump",
		Short: "Dumps databases with personal data masked",
		Long: `gdpr-dump by HelloFresh.
	Dumps the structure and data of a (mysql, postgres or sqlite) database as a
	mysqldump compatible SQL script, replacing the personal data of the columns
	listed in the gdpr-replacements document on the way.

	Perfect for bringing your live data to staging!`,
		Example:           `gdpr-dump mysqldump shop --user root --gdpr-replacements '{"users":{"email":"generator:fake_email"}}' -r shop.sql`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initLogging,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default is ./"+config.DefaultConfigFileName+")")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Make the operation more talkative")

	RootCmd.AddCommand(NewMySQLDumpCmd())
	RootCmd.AddCommand(NewInitCmd())
	RootCmd.AddCommand(NewGeneratorsCmd())
	RootCmd.AddCommand(NewVersionCmd())

	stacktrace.DefaultFormat = stacktrace.FormatBrief
	log.SetOutput(os.Stderr)
	log.SetFormatter(&formatter.CliFormatter{})
}

func initLogging(c *cobra.Command, args []string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	return nil
}

// Execute runs the root command and exits with a fatal log when it fails.
func Execute() {
	failOnError(RootCmd.Execute(), "gdpr-dump failed")
}

func failOnError(err error, message string) {
	if err != nil {
		log.WithError(err).Fatal(message)
	}
}
