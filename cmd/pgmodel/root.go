package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/pgmodel/log"
	"github.com/hatlonely/pgmodel/log/logger"
	"github.com/hatlonely/pgmodel/rdb"
	"github.com/hatlonely/pgmodel/rdb/builder"
	"github.com/hatlonely/pgmodel/rdb/dataaccess"
	"github.com/hatlonely/pgmodel/rdb/model"
	"github.com/hatlonely/pgmodel/rdb/pool"
)

// openPool 测试中替换为 sqlmock
var openPool = func(options *pool.Options, l logger.Logger) (*pool.Pool, error) {
	return pool.NewPoolWithOptions(options, pool.WithLogger(l))
}

type app struct {
	configPath string
	environ    func() []string
	config     *Config
	logger     logger.Logger
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{environ: os.Environ})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pgmodel",
		Short: "Create and inspect the tables described in a pgmodel config",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "pgmodel.yaml", "config file (yaml, toml, json or ini)")

	rootCmd.AddCommand(a.newDDLCmd())
	rootCmd.AddCommand(a.newCreateTablesCmd())
	rootCmd.AddCommand(a.newColumnExistsCmd())
	return rootCmd
}

func (a *app) init() error {
	c, err := LoadConfig(a.configPath, a.environ)
	if err != nil {
		return errors.WithMessage(err, "load config failed")
	}
	a.config = c

	a.logger = log.Default()
	if c.Log != nil {
		l, err := logger.NewSLogWithOptions(c.Log)
		if err != nil {
			return errors.WithMessage(err, "create logger failed")
		}
		a.logger = l
		log.SetDefault(l)
	}
	return nil
}

func (a *app) newDDLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ddl",
		Short: "Print CREATE TABLE statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := rdb.NewTableSet(a.config.Tables)
			if err != nil {
				return err
			}
			for _, sql := range builder.New(ts, builder.WithLogger(a.logger)).BuildCreateTableSQL() {
				fmt.Fprintln(cmd.OutOrStdout(), sql)
			}
			return nil
		},
	}
}

func (a *app) newCreateTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Execute CREATE TABLE IF NOT EXISTS for every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDataAccess(cmd.Context(), func(ctx context.Context, da *dataaccess.DataAccess) error {
				if _, err := model.NewModel(ctx, da, a.config.Tables, model.WithAutoCreate(), model.WithLogger(a.logger)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d tables\n", len(a.config.Tables))
				return nil
			})
		},
	}
}

func (a *app) newColumnExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "column-exists <table> <column>",
		Short: "Check whether a column exists in the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDataAccess(cmd.Context(), func(ctx context.Context, da *dataaccess.DataAccess) error {
				ok, err := builder.ColumnExists(ctx, da, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func (a *app) withDataAccess(ctx context.Context, fn func(ctx context.Context, da *dataaccess.DataAccess) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := openPool(&a.config.Pool, a.logger)
	if err != nil {
		return err
	}
	defer p.Close()

	opts := []dataaccess.Option{dataaccess.WithLogger(a.logger)}
	if a.config.Pool.EnableMetrics {
		opts = append(opts, dataaccess.WithMetrics(a.config.Pool.MetricsName))
	}
	da, err := dataaccess.New(p, opts...)
	if err != nil {
		return err
	}
	return fn(ctx, da)
}
