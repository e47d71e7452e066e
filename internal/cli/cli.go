// Package cli implements prepctl, the terminal front end over the same
// session service the web server uses.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/prepflow/internal/app"
	"github.com/JonMunkholm/prepflow/internal/backend"
	"github.com/JonMunkholm/prepflow/internal/config"
	"github.com/JonMunkholm/prepflow/internal/core"
	"github.com/JonMunkholm/prepflow/internal/job"
	"github.com/JonMunkholm/prepflow/internal/logging"
	"github.com/JonMunkholm/prepflow/internal/session"
	"github.com/JonMunkholm/prepflow/internal/steps"
)

// Version is reported by --version.
var Version = "dev"

// options are the persistent flags plus the loaded configuration.
type options struct {
	backendURL string
	logLevel   string
	cfg        *config.Config
}

// BuildCLI returns the prepctl root command.
func BuildCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "prepctl",
		Short: "Build and run tabular preprocessing pipelines",
		Long: `prepctl talks to the processing backend:
- preview a dataset and get null-fill recommendations
- render the pipeline payload of a YAML recipe
- run a recipe to completion and export the result`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "backend base URL (default from BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")

	rootCmd.AddCommand(buildPreviewCommand(opts))
	rootCmd.AddCommand(buildRecommendCommand(opts))
	rootCmd.AddCommand(buildPayloadCommand(opts))
	rootCmd.AddCommand(buildRunCommand(opts))

	return rootCmd
}

// load reads .env and the environment, applies flag overrides and sets up
// logging on stderr so stdout stays machine-readable.
func (o *options) load(stderr io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.backendURL != "" {
		cfg.Backend.URL = o.backendURL
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	// The CLI never shares the server's stored session.
	cfg.Session.Backend = session.BackendMemory

	slog.SetDefault(logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format))
	o.cfg = cfg
	return nil
}

// newApp builds the service for one command invocation.
func (o *options) newApp(ctx context.Context, exportDir string) (*app.App, error) {
	return app.New(ctx, o.cfg, app.Options{Logger: slog.Default(), ExportDir: exportDir})
}

// commandContext tags ctx with a request id and the CLI requester so the
// service logs can be correlated.
func commandContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, middleware.RequestIDKey, uuid.NewString())
	return core.WithRequester(ctx, core.Requester{Source: "cli", UserAgent: "prepctl/" + Version})
}

func buildPreviewCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preview <filename>",
		Short: "Show the columns, types and null counts of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := opts.newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Service.LoadPreview(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			return printPreview(cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw preview as JSON")
	return cmd
}

func printPreview(w io.Writer, p *backend.DatasetPreview) error {
	fmt.Fprintf(w, "%s: %d rows, %d columns, %d nulls\n\n", p.Filename, p.TotalRows, len(p.Columns), p.TotalNulls())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tDTYPE\tNULLS\tSAMPLE")
	for _, c := range p.ColumnInfo() {
		sample := ""
		if c.SampleValue != nil {
			sample = fmt.Sprint(c.SampleValue)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Name, c.Dtype, c.NullCount, sample)
	}
	return tw.Flush()
}

func buildRecommendCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recommend <filename>",
		Short: "Recommend a null-fill strategy for every column with nulls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd.Context())
			a, err := opts.newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Service.LoadPreview(ctx, args[0]); err != nil {
				return err
			}
			recs, err := a.Service.Recommendations()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}

			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no columns with nulls")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tNULLS\tSTRATEGY\tRULE\tREASON")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Column, r.NullCount, r.Fill.Strategy, r.Rule, r.Fill.Reason)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print recommendations as JSON")
	return cmd
}

func buildPayloadCommand(opts *options) *cobra.Command {
	var recipePath string
	var offline bool

	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Render the run request a recipe produces",
		Long: `Render the run request a recipe produces. Steps come out in canonical
order. With --offline the dataset preview is not fetched, so columns are not
checked against the dataset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := steps.LoadRecipe(recipePath)
			if err != nil {
				return err
			}

			if offline {
				cfg, err := rec.Config()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), job.RunRequest{
					DatasetRef:   rec.Dataset,
					TargetColumn: cfg.Target,
					Steps:        steps.BuildPayload(cfg, nil),
				})
			}

			ctx := commandContext(cmd.Context())
			a, err := opts.newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Service.ApplyRecipe(ctx, rec); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.Service.RunRequest())
		},
	}

	cmd.Flags().StringVarP(&recipePath, "file", "f", "recipe.yaml", "recipe file")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the backend")
	return cmd
}

func buildRunCommand(opts *options) *cobra.Command {
	var (
		recipePath string
		exportDir  string
		save       bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a recipe to completion",
		Long: `Run a recipe to completion, printing progress as the backend reports it.
On success the change summary is printed; --export writes the transformed
table as CSV and --save stores it through the backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := steps.LoadRecipe(recipePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := opts.newApp(ctx, exportDir)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Service.ApplyRecipe(ctx, rec); err != nil {
				return err
			}
			return runToCompletion(ctx, cmd.OutOrStdout(), a.Service, exportDir, save)
		},
	}

	cmd.Flags().StringVarP(&recipePath, "file", "f", "recipe.yaml", "recipe file")
	cmd.Flags().StringVar(&exportDir, "export", "", "write the result CSV into this directory")
	cmd.Flags().BoolVar(&save, "save", false, "save the result through the backend")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}

// runToCompletion starts the run and prints every distinct progress step
// until the job is terminal.
func runToCompletion(ctx context.Context, w io.Writer, svc *core.Service, exportDir string, save bool) error {
	if _, err := svc.Run(ctx); err != nil {
		return err
	}
	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	last := job.Job{Progress: -1}
wait:
	for {
		select {
		case j, ok := <-updates:
			if !ok {
				break wait
			}
			if j.Status != last.Status || j.Progress != last.Progress {
				fmt.Fprintf(w, "%-9s %3d%%  %ds\n", j.Status, j.Progress, j.ElapsedSeconds())
			}
			last = j
		case <-ctx.Done():
			svc.ResetRun()
			return ctx.Err()
		}
	}

	final := svc.Job()
	switch final.Status {
	case job.StatusCompleted:
	case job.StatusFailed:
		return &job.JobFailure{JobID: final.BackendID, Message: final.Error}
	default:
		return fmt.Errorf("run ended in state %s", final.Status)
	}

	sum, err := svc.Summary()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncompleted in %ds: %d updated cells, %d deleted rows, %d operations\n",
		final.ElapsedSeconds(), sum.UpdatedCells, sum.DeletedRows, sum.OperationsCount)
	if len(sum.ChangedColumns) > 0 {
		cols := append([]string(nil), sum.ChangedColumns...)
		sort.Strings(cols)
		fmt.Fprintf(w, "changed columns: %v\n", cols)
	}
	if len(sum.ColumnsAdded) > 0 {
		fmt.Fprintf(w, "added columns: %v\n", sum.ColumnsAdded)
	}
	if len(sum.ColumnsRemoved) > 0 {
		fmt.Fprintf(w, "removed columns: %v\n", sum.ColumnsRemoved)
	}

	if exportDir != "" {
		name, err := svc.Export(ctx, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "exported %s\n", name)
	}
	if save {
		n, err := svc.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "saved %d rows\n", n)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the CLI and returns the process exit code. Errors are
// printed in their user-facing form.
func Execute() int {
	if err := BuildCLI().Execute(); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "error:", core.FormatUserError(err))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return 1
	}
	return 0
}
