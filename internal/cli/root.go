// Package cli implements the journalread commands.
package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"journalread/config"
)

// cliState carries what the root command resolves for its subcommands.
type cliState struct {
	cfg *config.Config
}

// location is the zone for human timestamps and zone-less time arguments.
func (s *cliState) location(utc bool) (*time.Location, error) {
	if utc {
		return time.UTC, nil
	}
	switch tz := s.cfg.Output.Timezone; tz {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid OUTPUT_TIMEZONE %q: %w", tz, err)
		}
		return loc, nil
	}
}

// NewRootCmd builds the command tree. Invoked with files and no subcommand
// it behaves like "read".
func NewRootCmd() *cobra.Command {
	st := &cliState{}
	opts := &readOptions{}

	cmd := &cobra.Command{
		Use:   "journalread [flags] FILE...",
		Short: "Read systemd journal export files",
		Long: `journalread decodes files in the systemd journal export format, optionally
gzip, zstd, xz or lz4 compressed, filters their entries and prints them in
the output modes known from journalctl.

Examples:
  journalread system.export                      # All entries, short format
  journalread -u nginx.service -n 20 a.export.gz # First 20 entries of a unit
  journalread -S "2024-01-02 10:00" -o json a.export b.export
  journalread serve                              # HTTP API over EXPORT_DIRECTORY
  journalread forward --sink kafka a.export      # Ship entries to Kafka`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Config loading logs too; keep it at warn on stderr until the
			// configured level is known.
			if err := setupLogging(cmd.ErrOrStderr(), "warn"); err != nil {
				return err
			}
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			st.cfg = cfg
			level := cfg.LogLevel
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && !cmd.Flags().Changed("log-level") {
				level = "debug"
			}
			return setupLogging(cmd.ErrOrStderr(), level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, st, opts, args)
		},
	}

	cmd.PersistentFlags().String("log-level", "", "diagnostic log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "shorthand for --log-level=debug")
	_ = viper.BindPFlag("LOG_LEVEL", cmd.PersistentFlags().Lookup("log-level"))

	addReadFlags(cmd, opts)

	cmd.AddCommand(newReadCmd(st))
	cmd.AddCommand(newServeCmd(st))
	cmd.AddCommand(newForwardCmd(st))
	return cmd
}

// Execute runs the command tree. Output cut short by a closed pipe is not
// an error.
func Execute() error {
	signal.Ignore(syscall.SIGPIPE)
	err := NewRootCmd().Execute()
	if errors.Is(err, syscall.EPIPE) {
		return nil
	}
	return err
}
