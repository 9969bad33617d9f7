package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skeleton/migrations"
	"skeleton/pkg/auth"
	"skeleton/pkg/config"
	"skeleton/pkg/dispatch"
	"skeleton/pkg/httpx"
	"skeleton/pkg/logging"
	"skeleton/pkg/registry"
	"skeleton/pkg/store"
	"skeleton/pkg/telemetry"
	"skeleton/pkg/tokens"
)

type ctlDB interface {
	store.MigrationDB
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// env carries what every subcommand needs once the root command has loaded
// configuration.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	openDB func(ctx context.Context, pc store.PostgresConfig) (ctlDB, error)
	client *http.Client
}

// Testable variables for main()
var (
	osExit = os.Exit
	openDB = func(ctx context.Context, pc store.PostgresConfig) (ctlDB, error) {
		return store.NewPostgresPool(ctx, pc)
	}
)

func main() {
	if err := run(os.Args[1:], os.Stdout, openDB); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func run(args []string, out io.Writer, open func(context.Context, store.PostgresConfig) (ctlDB, error)) error {
	root := newRootCmd(&env{openDB: open})
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(context.Background())
}

func newRootCmd(e *env) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "skeletonctl",
		Short:         "Operate the skeleton dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	root.AddCommand(
		newMigrateCmd(e),
		newIssueTokenCmd(e),
		newSignUserCmd(e),
		newReloadCmd(e),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			db, err := e.openDB(ctx, e.cfg.Postgres)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			defer db.Close()
			applied, err := store.Migrate(ctx, db, migrations.FS, e.logger.Sugar().Infof)
			if err != nil {
				return fmt.Errorf("migration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", len(applied))
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "overall migration deadline")
	return cmd
}

func newIssueTokenCmd(e *env) *cobra.Command {
	var req tokens.Request
	var code string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint a route token for a registered token key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Key) == "" {
				return errors.New("--key is required")
			}
			req.Code = dispatch.ActionCode(strings.TrimSpace(code))
			db, err := e.openDB(cmd.Context(), e.cfg.Postgres)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			defer db.Close()
			src := registry.NewPostgres(db)
			cfg, err := tokens.NewIssuer(src, src).Issue(cmd.Context(), req)
			if err != nil {
				return err
			}
			e.logger.Info("token issued",
				zap.String("key", cfg.Key),
				zap.String("module", cfg.Module),
				zap.String("system", string(cfg.System)),
			)
			fmt.Fprintln(cmd.OutOrStdout(), tokens.Path(cfg.Token))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Key, "key", "", "token definition key")
	f.StringVar(&code, "code", "", "action code (s, d, ds, db, dbs, u, ...)")
	f.StringVar(&req.Act, "act", "id", "key column of the target table")
	f.StringVar(&req.RecordID, "record", "", "record the token is bound to")
	f.StringVar(&req.Validate, "validate", "0", "validation flag stored with the token")
	f.DurationVar(&req.TTL, "ttl", 0, "token lifetime; zero never expires")
	return cmd
}

func newSignUserCmd(e *env) *cobra.Command {
	var user auth.User
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "sign-user",
		Short: "Sign a session token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user.UserID) == "" {
				return errors.New("--user is required")
			}
			token, err := auth.Sign(e.cfg.AuthSecret, user, ttl, e.cfg.AuthIssuer, e.cfg.AuthAudience)
			if err != nil {
				return fmt.Errorf("sign: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&user.UserID, "user", "", "user id placed in the subject claim")
	f.StringVar(&user.BusinessID, "business", "", "business id; empty signs a central user")
	f.StringSliceVar(&user.Roles, "role", nil, "role claim, repeatable")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newReloadCmd(e *env) *cobra.Command {
	var baseURL, token string
	var retries int
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running node to reload the registry, permissions and controllers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("SKELETON_TOKEN")
			}
			if token == "" {
				return errors.New("--token or SKELETON_TOKEN is required")
			}
			c := httpx.Client{
				HTTP:       telemetry.InstrumentClient(e.client),
				Token:      token,
				Retries:    retries,
				RetryDelay: 500 * time.Millisecond,
				Logger:     e.logger,
			}
			status, body, err := c.Do(cmd.Context(), http.MethodPost, strings.TrimRight(baseURL, "/")+"/system/reload", nil)
			if err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			if status < 200 || status > 299 {
				return fmt.Errorf("reload: status %d: %s", status, strings.TrimSpace(string(body)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "http://localhost:8080", "node base URL")
	f.StringVar(&token, "token", "", "bearer token holding manage:system")
	f.IntVar(&retries, "retries", 2, "retries on transport errors and 5xx")
	return cmd
}
