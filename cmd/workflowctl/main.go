// Command workflowctl manages workflow definitions offline: it applies the
// schema migrations, validates and applies seed files, and prints workflows.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/config"
	"github.com/garyjia/hr-requests/internal/container"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/seed"
	"github.com/garyjia/hr-requests/pkg/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "workflowctl",
		Short:         "Manage HR request workflow definitions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(".env")
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")

	show := &cobra.Command{
		Use:   "show [workflow-name]",
		Short: "Print workflows and their ordered steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withStore(cmd.Context(), opts, false, func(env *cliEnv) error {
				return runShow(cmd.Context(), cmd.OutOrStdout(), env.store, name, opts.output)
			})
		},
	}
	show.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text or yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), opts, true, func(env *cliEnv) error {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "validate <seed-file>",
			Short: "Check a seed file without touching the database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := seed.LoadFile(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, %d workflows\n", args[0], len(f.Steps), len(f.Workflows))
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed <seed-file>",
			Short: "Create or update steps and workflows from a seed file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := seed.LoadFile(args[0])
				if err != nil {
					return err
				}
				return withStore(cmd.Context(), opts, true, func(env *cliEnv) error {
					res, err := seed.NewSeeder(env.repos.Step, env.repos.Workflow, env.store, env.db.TransactionMgr, env.logger).
						Apply(cmd.Context(), f)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "steps: %d created, %d updated\nworkflows: %d created, %d updated\n",
						res.StepsCreated, res.StepsUpdated, res.WorkflowsCreated, res.WorkflowsUpdated)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "replace-steps <workflow-name> <steps-file>",
			Short: "Replace the ordered steps of an existing workflow",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				steps, err := seed.ParsePlacements(data)
				if err != nil {
					return err
				}
				return withStore(cmd.Context(), opts, true, func(env *cliEnv) error {
					def, err := seed.NewSeeder(env.repos.Step, env.repos.Workflow, env.store, env.db.TransactionMgr, env.logger).
						ReplaceSteps(cmd.Context(), args[0], steps)
					if err != nil {
						return err
					}
					return printViews(cmd.OutOrStdout(), []workflowView{viewOf(def)}, "text")
				})
			},
		},
		show,
	)

	return root
}

type cliEnv struct {
	db     *container.DatabaseBundle
	repos  *container.RepositoryBundle
	store  workflow.Store
	logger *zap.Logger
}

// withStore opens the configured database and hands fn a workflow store over it
func withStore(ctx context.Context, opts *options, migrate bool, fn func(env *cliEnv) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{Level: "warn", OutputPath: "stderr", Format: "console"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbCfg := container.DatabaseConfig{
		Driver:          cfg.Database.Driver,
		Path:            cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     migrate,
	}
	db, err := container.ProvideDatabase(&dbCfg, logger)
	if err != nil {
		return err
	}
	defer db.DB.Close()

	repos, err := container.ProvideRepositories(db.TransactionMgr, logger)
	if err != nil {
		return err
	}

	store := workflow.NewStore(repos.Workflow, repos.Step, db.TransactionMgr,
		workflow.WithLogger(utils.NewKVLogger(logger)))

	return fn(&cliEnv{db: db, repos: repos, store: store, logger: logger})
}

// workflowView is the printed shape of a workflow
type workflowView struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Active      bool       `yaml:"active"`
	Steps       []stepView `yaml:"steps"`
}

type stepView struct {
	Order int      `yaml:"order"`
	Step  string   `yaml:"step"`
	Role  string   `yaml:"role"`
	Next  []string `yaml:"next,omitempty"`
	Final bool     `yaml:"final,omitempty"`
}

func runShow(ctx context.Context, w io.Writer, store workflow.DefinitionStore, name, output string) error {
	workflows, err := store.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	var views []workflowView
	for _, wf := range workflows {
		if name != "" && wf.Name != name {
			continue
		}
		def, err := store.GetWorkflow(ctx, wf.ID)
		if err != nil {
			return err
		}
		views = append(views, viewOf(def))
	}
	if name != "" && len(views) == 0 {
		return fmt.Errorf("workflow %s: %w", name, entity.ErrNotFound)
	}

	return printViews(w, views, output)
}

func printViews(w io.Writer, views []workflowView, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, v := range views {
			fmt.Fprintf(tw, "%s\tactive=%t\t%s\n", v.Name, v.Active, v.Description)
			for _, s := range v.Steps {
				switch {
				case s.Final:
					fmt.Fprintf(tw, "  %d. %s\t%s\t(final)\n", s.Order, s.Step, s.Role)
				case len(s.Next) == 0:
					fmt.Fprintf(tw, "  %d. %s\t%s\t-> any\n", s.Order, s.Step, s.Role)
				default:
					fmt.Fprintf(tw, "  %d. %s\t%s\t-> %v\n", s.Order, s.Step, s.Role, s.Next)
				}
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func viewOf(def *entity.WorkflowDefinition) workflowView {
	names := make(map[string]string, len(def.Steps))
	for _, s := range def.Steps {
		names[s.StepID] = s.Step.Name
	}

	v := workflowView{
		Name:        def.Name,
		Description: def.Description,
		Active:      def.IsActive,
	}
	for _, s := range def.Steps {
		sv := stepView{Order: s.Order, Step: s.Step.Name, Role: string(s.ResponsibleRole()), Final: s.Final}
		for _, id := range s.AllowedNextStepIDs {
			if n, ok := names[id]; ok {
				sv.Next = append(sv.Next, n)
			} else {
				sv.Next = append(sv.Next, id)
			}
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}
