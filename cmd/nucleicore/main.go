// Command nucleicore validates, repairs and moves stored nucleus datasets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nucleicore/internal/blob"
	"nucleicore/internal/config"
	"nucleicore/internal/core"
	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

var (
	exitFunc = os.Exit

	errValidationFailed = errors.New("dataset failed validation")
	errRepairIncomplete = errors.New("dataset still fails validation after repair")
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{viper: config.New(), stderr: stderr}
	defer a.close()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "Error: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}

// app holds the per-invocation configuration and lazily opened stores.
type app struct {
	viper   *viper.Viper
	cfgFile string
	verbose bool
	stderr  io.Writer

	cfg    config.Config
	logger *slog.Logger
	svc    *core.Service
}

func (a *app) setup() error {
	cfg, err := config.Load(a.viper, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return nil
}

func (a *app) options() []core.Option {
	return []core.Option{core.WithLogger(a.logger), core.WithWorkers(a.cfg.Stats.Workers)}
}

func (a *app) service() (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	store, err := core.OpenSnapshotStore(core.StorageDriver(a.cfg.Storage.Driver), a.cfg.Storage.SQLitePath, a.cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.svc = core.NewService(store, a.options()...)
	return a.svc, nil
}

func (a *app) exporter(ctx context.Context) (*core.Exporter, error) {
	store, err := blob.OpenConfig(ctx, a.cfg.BlobStoreConfig())
	if err != nil {
		return nil, err
	}
	return core.NewExporter(store, a.options()...), nil
}

func (a *app) close() {
	if a.svc == nil {
		return
	}
	if err := a.svc.Close(); err != nil && a.logger != nil {
		a.logger.Warn("close snapshot store", slog.Any("error", err))
	}
}

func parseDatasetID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid dataset id %q: %w", arg, err)
	}
	return id, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "nucleicore",
		Short:         "Validate and repair stored nucleus datasets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML); NUCLEICORE_* variables override it")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	_ = a.viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newValidateCmd(a),
		newRepairCmd(a),
		newListCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newRuleSetsCmd(a),
	)
	return root
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dataset-id>",
		Short: "Check landmark and segment consistency of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDatasetID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			report, err := svc.Validate(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			if !report.OK {
				return errValidationFailed
			}
			return nil
		},
	}
}

func newRepairCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <dataset-id>",
		Short: "Move misplaced reference points onto the median segment boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDatasetID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.Repair(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Repaired %d nuclei\n", res.Repaired)
			causes := make([]core.SkipCause, 0, len(res.Skipped))
			for cause := range res.Skipped {
				causes = append(causes, cause)
			}
			slices.Sort(causes)
			for _, cause := range causes {
				fmt.Fprintf(out, "Skipped %d nuclei: %s\n", res.Skipped[cause], cause)
			}
			fmt.Fprint(out, res.Final.String())
			if !res.OK {
				return errRepairIncomplete
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var exports bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored datasets, or exported snapshots with --exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			header := "ID\tNAME\tCELLS\tVERSION\tSAVED"
			list := a.listDatasets
			if exports {
				header = "ID\tNAME\tCELLS\tVERSION\tEXPORTED"
				list = a.listExports
			}
			infos, err := list(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, header)
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", info.ID, info.Name, info.Cells, info.Version, info.SavedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&exports, "exports", false, "list snapshots in the export blob store")
	return cmd
}

func (a *app) listDatasets(ctx context.Context) ([]domain.SnapshotInfo, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	return svc.List(ctx)
}

func (a *app) listExports(ctx context.Context) ([]domain.SnapshotInfo, error) {
	exp, err := a.exporter(ctx)
	if err != nil {
		return nil, err
	}
	return exp.List(ctx)
}

func newExportCmd(a *app) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "export <dataset-id>",
		Short: "Write a dataset snapshot to the blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseDatasetID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			d, err := svc.Load(ctx, id)
			if err != nil {
				return err
			}
			exp, err := a.exporter(ctx)
			if err != nil {
				return err
			}
			info, err := exp.Export(ctx, d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, info.Key)
			if expiry > 0 {
				url, err := exp.URL(ctx, id, expiry)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, url)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiry, "url", 0, "also print a download link valid for this long")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <key>",
		Short: "Restore an exported snapshot into the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := a.exporter(ctx)
			if err != nil {
				return err
			}
			snap, err := exp.Fetch(ctx, args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			d, err := svc.Import(ctx, snap)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s, %d cells)\n", d.ID(), d.Name(), d.Collection().Size())
			return nil
		},
	}
}

func newRuleSetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rulesets [dataset-id]",
		Short: "Print the configured rule set, or the rule set of a dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := a.ruleSet(cmd.Context(), args)
			if err != nil {
				return err
			}
			return profile.EncodeRuleSet(cmd.OutOrStdout(), rs)
		},
	}
}

func (a *app) ruleSet(ctx context.Context, args []string) (*profile.RuleSet, error) {
	if len(args) == 0 {
		if a.cfg.RuleSet == "" {
			return profile.RoundRuleSet(), nil
		}
		return profile.LoadRuleSetFile(a.cfg.RuleSet)
	}
	id, err := parseDatasetID(args[0])
	if err != nil {
		return nil, err
	}
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	d, err := svc.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Collection().RuleSet(), nil
}
