package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/o365auth/internal/config"
	"github.com/dropDatabas3/o365auth/internal/http/server"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/security/secretbox"
	"github.com/dropDatabas3/o365auth/internal/store/pg"
)

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		cfgPath = envOr("O365AUTH_CONFIG", "config.yaml")
		envFile = envOr("O365AUTH_ENV_FILE", ".env")
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "o365auth",
		Short:         "Login con Office 365 (OAuth2 + Graph) y provisioning de usuarios locales",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional; las variables del sistema siempre ganan
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			c, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{
				Env:         c.App.Env,
				Level:       c.App.LogLevel,
				ServiceName: "o365auth",
				Version:     server.Version,
			})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Path al YAML de configuración (env O365AUTH_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env a cargar si existe (env O365AUTH_ENV_FILE)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP (/init, /redirect, /readyz, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migraciones de la tabla de usuarios (postgres)",
	}
	for _, dir := range []pg.Direction{pg.Up, pg.Down} {
		dir := dir
		migrateCmd.AddCommand(&cobra.Command{
			Use:   string(dir) + " [steps]",
			Short: "Aplica migraciones " + string(dir) + " (todas si no se indica steps)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 0
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 0 {
						return fmt.Errorf("steps inválido: %q", args[0])
					}
					steps = n
				}
				return runMigrate(cmd.Context(), cfg, dir, steps)
			},
		})
	}

	var printDir string
	migratePrintCmd := &cobra.Command{
		Use:   "print",
		Short: "Imprime el SQL renderizado para la tabla configurada, sin ejecutarlo",
		RunE: func(cmd *cobra.Command, args []string) error {
			stmts, err := pg.RenderMigrations(cfg.O365.UserTable, pg.Direction(printDir))
			if err != nil {
				return err
			}
			for _, s := range stmts {
				fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n%s\n\n", s.Name, s.SQL)
			}
			return nil
		},
	}
	migratePrintCmd.Flags().StringVar(&printDir, "direction", string(pg.Up), "up|down")
	migrateCmd.AddCommand(migratePrintCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Operaciones sobre la configuración",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Valida credenciales y muestra la configuración efectiva (sin secretos)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := cfg.O365.Resolve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client_id:     %s\n", pc.ClientID)
			fmt.Fprintf(out, "redirect_uri:  %s\n", pc.RedirectURI)
			fmt.Fprintf(out, "authorize_url: %s\n", pc.AuthorizeURL)
			fmt.Fprintf(out, "token_url:     %s\n", pc.TokenURL)
			fmt.Fprintf(out, "userinfo_url:  %s\n", pc.UserInfoURL)
			fmt.Fprintf(out, "scopes:        %s\n", strings.Join(pc.Scopes, " "))
			fmt.Fprintf(out, "domain_policy: %s %s\n", pc.DomainPolicy.Mode(), strings.Join(pc.DomainPolicy.Domains(), ","))
			fmt.Fprintf(out, "user_table:    %s\n", pc.UserTable)
			fmt.Fprintf(out, "storage:       %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "cache:         %s\n", cfg.Cache.Kind)
			fmt.Fprintf(out, "route_prefix:  %s\n", cfg.O365.RoutePrefix)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "seal-secret <client-secret>",
		Short: "Cifra el client secret con O365_SECRET_KEY para guardarlo como enc:...",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretbox.ParseKey(cfg.O365.SecretKey)
			if err != nil {
				return err
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}
			sealed, err := box.Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	})

	root.AddCommand(serveCmd, migrateCmd, configCmd)

	err := root.ExecuteContext(context.Background())
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, dir pg.Direction, steps int) error {
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requiere storage.driver=postgres (actual: %s)", cfg.Storage.Driver)
	}
	st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: 2, UserTable: cfg.O365.UserTable})
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := pg.Migrate(ctx, st.Pool(), cfg.O365.UserTable, dir, steps)
	if err != nil {
		return fmt.Errorf("migrate %s (aplicadas %d): %w", dir, n, err)
	}
	logger.L().Info("migrations done", logger.String("direction", string(dir)), logger.Int("applied", n))
	return nil
}
