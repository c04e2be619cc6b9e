package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"journalread/internal/dto"
	"journalread/internal/formatter"
	"journalread/internal/model"
	"journalread/internal/service"
	"journalread/internal/source"
	"journalread/internal/util"
)

type filterOptions struct {
	unit  string
	since string
	until string
	lines int
}

type readOptions struct {
	filter filterOptions
	output string
	utc    bool
}

func addFilterFlags(cmd *cobra.Command, opts *filterOptions) {
	cmd.Flags().StringVarP(&opts.unit, "unit", "u", "", "show entries of this systemd unit only")
	cmd.Flags().StringVarP(&opts.since, "since", "S", "", "show entries at or after this time")
	cmd.Flags().StringVarP(&opts.until, "until", "U", "", "show entries at or before this time")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 0, "stop after this many entries across all files")
}

func addReadFlags(cmd *cobra.Command, opts *readOptions) {
	addFilterFlags(cmd, &opts.filter)
	cmd.Flags().StringVarP(&opts.output, "output", "o", string(formatter.DefaultMode),
		fmt.Sprintf("output mode (%s)", joinModes()))
	cmd.Flags().BoolVar(&opts.utc, "utc", false, "express times in UTC")
}

func joinModes() string {
	names := formatter.ModeNames()
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// spec turns the filter flags into a FilterSpec. Times without a zone are
// read in loc.
func (o *filterOptions) spec(cmd *cobra.Command, loc *time.Location, now time.Time) (dto.FilterSpec, error) {
	spec := dto.FilterSpec{Unit: o.unit}
	if o.since != "" {
		t, err := util.ParseTimeFlexible(o.since, loc, now)
		if err != nil {
			return spec, fmt.Errorf("--since: %w", err)
		}
		spec.Since = t
	}
	if o.until != "" {
		t, err := util.ParseTimeFlexible(o.until, loc, now)
		if err != nil {
			return spec, fmt.Errorf("--until: %w", err)
		}
		spec.Until = t
	}
	if cmd.Flags().Changed("lines") {
		if o.lines < 0 {
			return spec, fmt.Errorf("--lines must not be negative, got %d", o.lines)
		}
		spec.Limit = dto.IntPtr(o.lines)
	}
	return spec, nil
}

func newReadCmd(st *cliState) *cobra.Command {
	opts := &readOptions{}
	cmd := &cobra.Command{
		Use:   "read [flags] FILE...",
		Short: "Print the entries of export files",
		Long: `Print the entries of one or more export files in order, after filtering
by unit and time. The --lines limit counts entries across all files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, st, opts, args)
		},
	}
	addReadFlags(cmd, opts)
	return cmd
}

func runRead(cmd *cobra.Command, st *cliState, opts *readOptions, args []string) error {
	if len(args) == 0 {
		return errors.New("no export files given")
	}

	loc, err := st.location(opts.utc)
	if err != nil {
		return err
	}
	spec, err := opts.filter.spec(cmd, loc, time.Now())
	if err != nil {
		return err
	}

	modeName := opts.output
	if !cmd.Flags().Changed("output") && st.cfg.Output.Mode != "" {
		modeName = st.cfg.Output.Mode
	}
	mode, err := formatter.ParseOutputMode(modeName)
	if err != nil {
		return err
	}
	f, err := formatter.New(mode, formatter.Options{
		Location:       loc,
		BinaryEncoding: formatter.BinaryEncoding(st.cfg.Output.BinaryEncoding),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	out := bufio.NewWriterSize(cmd.OutOrStdout(), 64*1024)
	reader := service.NewJournalReaderService(source.NewFileOpener())
	_, err = reader.Stream(ctx, args, spec, func(path string, rec *model.LogRecord) error {
		return f.Format(out, rec)
	})
	// Entries emitted before a failure are still printed.
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
