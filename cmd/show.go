package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/savid/radio-schedule/internal/logging"
	"github.com/savid/radio-schedule/pkg/data"
	"github.com/spf13/cobra"
)

func newShowCLI(opts *options) *cobra.Command {
	var channelID string

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Run one refresh cycle and print the schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = closeLog()
			}()
			if cfg.LogFile == "" {
				logger.SetOutput(cmd.ErrOrStderr())
			}

			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			repo := newRepository(cfg, loc, logger)
			if err := repo.Refresh(cmd.Context(), channelID, time.Now().In(loc)); err != nil && cmd.Context().Err() != nil {
				return err
			}

			snap := repo.Snapshot()
			if err := printSchedule(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
			if snap.HasError() {
				fmt.Fprintln(cmd.ErrOrStderr(), snap.ErrorMessage())
				return fmt.Errorf("refresh finished with %d errors", len(snap.Errors))
			}
			return nil
		},
	}

	showCmd.Flags().StringVarP(&channelID, "channel", "c", data.AllChannels, "Only show this channel id")

	return showCmd
}

func printSchedule(out io.Writer, snap *data.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tSTART\tEND\tTITLE")
	for _, ep := range snap.Episodes {
		fmt.Fprintf(w, "%s\t%s %s\t%s %s\t%s\n",
			ep.ChannelName, ep.StartDate, ep.StartTime, ep.EndDate, ep.EndTime, ep.Title)
	}
	return w.Flush()
}
