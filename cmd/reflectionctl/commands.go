package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	"github.com/noah-isme/lesson-reflection-api/internal/service"
	"github.com/noah-isme/lesson-reflection-api/pkg/config"
	"github.com/noah-isme/lesson-reflection-api/pkg/database"
	"github.com/noah-isme/lesson-reflection-api/pkg/logger"
	"github.com/noah-isme/lesson-reflection-api/pkg/seed"
)

type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func openEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &environment{cfg: cfg, logger: logr, db: db}, nil
}

func (e *environment) Close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := database.EnsureSchema(ctx, env.db); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var (
		source string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Insert missing master data from a bulk source",
		Long: `Reads teachers, students, guardians and their links from a directory of JSON
files or an .xlsx workbook and inserts the records that do not exist yet. Existing rows
are never modified.

Examples:
  reflectionctl import --source data/bootstrap
  reflectionctl import --source roster.xlsx --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return describeSource(cmd, source)
			}

			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			if source == "" {
				source = env.cfg.Bootstrap.Source
			}
			if source == "" {
				return fmt.Errorf("no source given and BOOTSTRAP_SOURCE is empty")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := service.NewBootstrapService(service.BootstrapConfig{
				Source:          source,
				DefaultPassword: env.cfg.Auth.DefaultPassword,
			}, repository.NewImportRepository(env.db), func(ctx context.Context) error {
				return database.EnsureSchema(ctx, env.db)
			}, env.logger.Named("bootstrap"))

			stats, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted teachers=%d students=%d guardians=%d links=%d\n",
				stats.Teachers, stats.Students, stats.Guardians, stats.Links)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "JSON directory or .xlsx workbook (defaults to BOOTSTRAP_SOURCE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the source and print its counts without touching the database")
	return cmd
}

func describeSource(cmd *cobra.Command, source string) error {
	if source == "" {
		return fmt.Errorf("--source is required with --dry-run")
	}
	ds, err := seed.Load(source)
	if err != nil {
		return err
	}
	links := 0
	for _, l := range ds.Links {
		links += len(l.GuardianIDs)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "source %s: teachers=%d students=%d guardians=%d links=%d\n",
		source, len(ds.Teachers), len(ds.Students), len(ds.Guardians), links)
	return nil
}

type studentCreator interface {
	FindOrCreateStudent(ctx context.Context, name string) (*models.Student, bool, error)
	CreateStudent(ctx context.Context, name string) (*models.Student, error)
}

func addStudentCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add-student NAME",
		Short: "Register a student by name",
		Long: `Registers a student. Without --force an existing student whose name matches
after width and whitespace folding is reused instead.

Examples:
  reflectionctl add-student "青山 太郎"
  reflectionctl add-student "青山 太郎" --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			svc := service.NewMasterDataService(
				repository.NewTeacherRepository(env.db),
				repository.NewStudentRepository(env.db),
				repository.NewGuardianRepository(env.db),
				env.logger.Named("masterdata"),
			)
			return addStudent(cmd.Context(), cmd.OutOrStdout(), svc, args[0], force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "always insert a new student even when the name already exists")
	return cmd
}

func addStudent(ctx context.Context, out io.Writer, students studentCreator, name string, force bool) error {
	if force {
		student, err := students.CreateStudent(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s %s\n", student.ID, student.Name)
		return nil
	}
	student, created, err := students.FindOrCreateStudent(ctx, name)
	if err != nil {
		return err
	}
	verb := "reused"
	if created {
		verb = "created"
	}
	fmt.Fprintf(out, "%s %s %s\n", verb, student.ID, student.Name)
	return nil
}
