package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haukened/livedata/internal/config"
	"github.com/haukened/livedata/internal/domain"
	"github.com/haukened/livedata/internal/janitor"
	"github.com/haukened/livedata/internal/metrics"
	"github.com/haukened/livedata/internal/watch"
)

// cli carries flag values and the wired runtime between cobra hooks.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cipherName string
	logLevel   string

	cfg *config.Config
	rt  *runtime
}

// execute runs one command line and always releases the runtime, including
// when the command fails.
func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	root, c := newRootCmd(in, out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.teardown())
}

func newRootCmd(in io.Reader, out, errOut io.Writer) (*cobra.Command, *cli) {
	c := &cli{in: in, out: out, errOut: errOut}
	root := &cobra.Command{
		Use:   "livedata",
		Short: "Edit protected application data files",
		Long: `livedata saves and loads application data files through a configurable
transform pipeline (compression plus a selectable cipher), keeps rotated
backups of every file it overwrites, and can watch a file for external changes.

Configuration comes from LIVEDATA_* environment variables, for example
LIVEDATA_KEY and LIVEDATA_IV (hex), LIVEDATA_CIPHER, LIVEDATA_DATA_ROOT.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.cipherName, "cipher", "", "Cipher to use (AES256, XChaChaPoly, RSA, Base64, \"Hollow Knight\", None)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		c.saveCmd(),
		c.loadCmd(),
		c.sampleCmd(),
		c.watchCmd(),
		c.backupsCmd(),
		c.restoreCmd(),
		c.pruneCmd(),
		c.statsCmd(),
		c.ciphersCmd(),
	)
	return root, c
}

// setup loads configuration, applies flag overrides and wires the runtime.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations["offline"] == "true" {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if c.cipherName != "" {
		id, err := domain.ParseCipherID(c.cipherName)
		if err != nil {
			return err
		}
		cfg.Cipher = id
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	logger := newLogger(cfg.LogLevel, c.errOut)
	rt, err := buildRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.rt = rt
	return nil
}

func (c *cli) teardown() error {
	if c.rt == nil {
		return nil
	}
	err := c.rt.Close()
	c.rt = nil
	return err
}

func (c *cli) saveCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Encode text and write it to a data file",
		Long: `Read plain text (usually JSON) from --input or stdin, compress and
encrypt it with the selected cipher, and replace <file>. The previous
contents of <file> are backed up first; if the backup fails nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = c.in
			if input != "" && input != "-" {
				f, err := os.Open(input) // #nosec G304 operator-supplied input
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			text, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			return c.rt.svc.Save(cmd.Context(), args[0], string(text))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "File holding the text to save (- for stdin)")
	return cmd
}

func (c *cli) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Decode a data file and print its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := c.rt.svc.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, text)
			return err
		},
	}
}

func (c *cli) sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample <file>",
		Short: "Write a sample document to a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.rt.svc.CreateSample(cmd.Context(), args[0])
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Print a data file's text every time it changes",
		Long: `Load <file> once, then reload and print it whenever it changes on disk
until interrupted. While watching, a retention sweep prunes every backup set
on the configured sweep interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.watch(ctx, args[0], watch.OpenFS)
		},
	}
}

// watch runs the monitor until ctx is done, printing each update.
func (c *cli) watch(ctx context.Context, path string, open watch.Opener) error {
	rt := c.rt
	rt.metrics.Start(ctx)
	sweeper := janitor.New(rt.backups, rt.metrics, janitor.Config{Interval: c.cfg.SweepInterval, Logger: rt.logger})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	slot := watch.NewSlot()
	mon := watch.New(rt.svc, slot, watch.Options{Open: open, Logger: rt.logger, Recorder: rt.metrics})
	if err := mon.Start(ctx, path); err != nil {
		return err
	}
	defer mon.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-slot.Changed():
			u, _ := slot.Latest()
			if _, err := fmt.Fprintln(c.out, u.Message()); err != nil {
				return err
			}
		}
	}
}

func (c *cli) backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups <file>",
		Short: "List the backups of a data file, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.rt.backups.List(filepath.Base(args[0]))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCREATED\tSIZE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Name, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Size)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-name> <file>",
		Short: "Copy a backup over a data file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.rt.svc.Restore(cmd.Context(), args[0], args[1])
		},
	}
}

func (c *cli) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune [file...]",
		Short: "Apply the retention policy now",
		Long: `Apply the configured retention policy to the backups of the named files,
or to every backup set when no file is named.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := c.rt
			if len(args) == 0 {
				sweeper := janitor.New(rt.backups, rt.metrics, janitor.Config{Logger: rt.logger})
				cycle := sweeper.RunOnce(cmd.Context())
				_, err := fmt.Fprintf(c.out, "pruned %d backups across %d files, failed %d\n", cycle.Deleted, cycle.Files, cycle.Failed)
				return err
			}
			var errs []error
			for _, a := range args {
				report, err := rt.backups.Prune(cmd.Context(), filepath.Base(a), rt.backups.Policy())
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", a, err))
					continue
				}
				rt.metrics.Inc(metrics.CounterBackupsPruned, int64(len(report.Deleted)))
				rt.metrics.Inc(metrics.CounterPruneFailures, int64(len(report.Failed)))
				fmt.Fprintf(c.out, "%s: pruned %d, kept %d, failed %d\n", filepath.Base(a), len(report.Deleted), len(report.Kept), len(report.Failed))
			}
			return errors.Join(errs...)
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print persisted usage counters as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return metrics.WriteReport(cmd.Context(), c.out, c.rt.metrics)
		},
	}
}

func (c *cli) ciphersCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "ciphers",
		Short:       "List the available ciphers",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range domain.Ciphers() {
				if _, err := fmt.Fprintln(c.out, id.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
