package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"demosync/internal/app"
	"demosync/internal/config"
	"demosync/internal/demo"
	"demosync/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, tokenSourceFromEnv())
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// tokenSourceFromEnv returns a remote file store token source when
// DEMOSYNC_REMOTE_TOKEN is set, otherwise nil (no remote session).
func tokenSourceFromEnv() demo.TokenSource {
	token := os.Getenv("DEMOSYNC_REMOTE_TOKEN")
	if token == "" {
		return nil
	}
	return envTokenSource(token)
}

type envTokenSource string

func (t envTokenSource) Token(context.Context) (string, error) { return string(t), nil }

var rootCmd = &cobra.Command{
	Use:   "demosync",
	Short: "Demo document persistence and sync",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Default Storage: %s\n", cfg.DefaultStorage)
		fmt.Printf("Base Dir:        %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Server API:      %s\n", cfg.ServerAPI.BaseURL)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		for _, e := range entries {
			modified := ""
			if e.LastModified > 0 {
				modified = time.UnixMilli(e.LastModified).Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-12s  %-19s  %s\n", e.ID, e.StorageKind, modified, e.Name)
		}
		return nil
	},
}

// create command
var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, _ := cmd.Flags().GetString("storage")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		kind := a.DefaultKind()
		if storage != "" {
			kind = demo.StorageKind(storage)
			if !kind.Valid() {
				return fmt.Errorf("unknown storage kind: %s", storage)
			}
		}

		doc, err := a.Create(cmd.Context(), kind, args[0])
		if err != nil {
			return fmt.Errorf("creating document: %w", err)
		}

		fmt.Printf("Created %s document %s (%s)\n", doc.StorageKind, doc.Name, doc.ID)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}

		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Rename(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("renaming document: %w", err)
		}

		fmt.Printf("Renamed %s to %q\n", args[0], args[1])
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		var store server.Store
		if cfg.Serve.DatabaseURL != "" {
			pg, err := server.NewPostgresStore(cfg.Serve.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			store = pg
		} else {
			fmt.Fprintln(os.Stderr, "no database_url configured, serving from memory")
			store = server.NewMemoryStore(demo.RealClock{})
		}
		defer store.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		srv := server.NewServer(store, logger, cfg.Serve.SitePassword)
		httpSrv := &http.Server{Addr: cfg.Serve.Addr, Handler: srv.Handler()}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fmt.Printf("Listening on %s\n", cfg.Serve.Addr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringP("storage", "s", "", "Storage kind: local, remote-file, or server")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(serveCmd)
}
