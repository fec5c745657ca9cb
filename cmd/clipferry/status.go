package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/ipc"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/transport"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, outbox and image cache state",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return runStatus(cmd.OutOrStdout(), v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addStoreFlags(cmd)
	addSocketFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

type statusReport struct {
	Socket    string        `json:"socket"`
	Running   bool          `json:"running"`
	Outbox    string        `json:"outbox"`
	Pending   string        `json:"pending,omitempty"`
	CacheDir  string        `json:"cache_dir"`
	CacheKeep int           `json:"cache_keep"`
	Entries   []cache.Entry `json:"entries"`
}

func runStatus(w io.Writer, v *viper.Viper) error {
	socket := ipc.SocketPath(v.GetString("socket"))
	rep := statusReport{
		Socket:    socket,
		Running:   ipc.IsRunning(socket),
		Outbox:    v.GetString("outbox"),
		CacheDir:  v.GetString("cache-dir"),
		CacheKeep: v.GetInt("cache-keep"),
	}

	outbox, err := transport.NewDir(rep.Outbox, codec.FormatInline)
	if err != nil {
		return err
	}
	switch m, err := outbox.Receive(); {
	case err == nil:
		rep.Pending = m.Format.String()
	case !errors.Is(err, message.ErrEmpty):
		return err
	}

	c, err := cache.New(rep.CacheDir, rep.CacheKeep, clock.Real())
	if err != nil {
		return err
	}
	if rep.Entries, err = c.Entries(); err != nil {
		return err
	}

	if v.GetBool("json") {
		enc, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Fprintln(w, string(enc))
		return nil
	}
	printStatus(w, rep)
	return nil
}

func printStatus(w io.Writer, rep statusReport) {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	daemon := "not running"
	if rep.Running {
		daemon = "running"
	}
	pending := rep.Pending
	if pending == "" {
		pending = "-"
	}
	fmt.Fprintf(tw, "Daemon:\t%s (%s)\n", daemon, rep.Socket)
	fmt.Fprintf(tw, "Outbox:\t%s\n", rep.Outbox)
	fmt.Fprintf(tw, "Pending:\t%s\n", pending)
	fmt.Fprintf(tw, "Cache:\t%s (keep %d)\n", rep.CacheDir, rep.CacheKeep)
	fmt.Fprintln(tw)
	_ = tw.Flush()

	if len(rep.Entries) == 0 {
		fmt.Fprintln(w, "No cached images.")
		return
	}
	tw = tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "FILE\tSIZE\tCREATED\n")
	_, _ = fmt.Fprintf(tw, "----\t----\t-------\n")
	for _, e := range rep.Entries {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Path, e.Size, fmtAge(e.CreatedAt))
	}
	_ = tw.Flush()
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("2006-01-02 15:04:05")
}
