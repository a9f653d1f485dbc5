package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/BookWise/internal/catalog"
	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/database"
	"github.com/dharsanguruparan/BookWise/internal/logger"
	"github.com/dharsanguruparan/BookWise/internal/model"
	pdfutil "github.com/dharsanguruparan/BookWise/internal/pdf"
	"github.com/dharsanguruparan/BookWise/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bookwise: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookwise",
		Short: "BookWise library administration",
		Long: `bookwise manages a BookWise deployment: schema migrations, catalog seeding,
account reviews and receipt inspection. Configuration is read from the same
environment variables as the server.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newMakeAdminCmd(),
		newUsersCmd(),
		newReceiptCmd(),
		newServeCmd(),
	)
	return cmd
}

const drainTimeout = 30 * time.Second

// withServer loads configuration, builds every component and runs fn. Jobs
// fn queued in process are drained before everything is closed.
func withServer(ctx context.Context, service string, fn func(*server.Server) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lg := logger.New(service, cfg.LogLevel)
	defer func() { _ = lg.Sync() }()
	srv, err := server.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer srv.Close()
	if err := fn(srv); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	return srv.Drain(ctx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			lg := logger.New("bookwise-cli", cfg.LogLevel)
			defer func() { _ = lg.Sync() }()
			db, err := database.Open(ctx, cfg, lg.Named("database"))
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(ctx, db.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load books into the catalog, skipping ones already present",
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := readSeed(file)
			if err != nil {
				return err
			}
			return withServer(cmd.Context(), "bookwise-cli", func(srv *server.Server) error {
				n, err := srv.Catalog.Seed(cmd.Context(), books)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d books\n", n, len(books))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of books (defaults to the bundled sample catalog)")
	return cmd
}

func readSeed(file string) ([]catalog.NewBook, error) {
	if file == "" {
		return catalog.SampleBooks()
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.ReadBooks(f)
}

func newMakeAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "make-admin EMAIL",
		Short: "Grant the ADMIN role to an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), "bookwise-cli", func(srv *server.Server) error {
				user, err := srv.Accounts.MakeAdmin(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an administrator\n", user.FullName, user.Email)
				return nil
			})
		},
	}
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Review pending account requests",
	}
	cmd.AddCommand(
		newReviewCmd("approve", model.AccountApproved),
		newReviewCmd("reject", model.AccountRejected),
	)
	return cmd
}

func newReviewCmd(name string, status model.AccountStatus) *cobra.Command {
	return &cobra.Command{
		Use:   name + " USER_ID",
		Short: fmt.Sprintf("Mark a pending account %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), "bookwise-cli", func(srv *server.Server) error {
				user, err := srv.Accounts.Review(cmd.Context(), args[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Status)
				return nil
			})
		},
	}
}

func newReceiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Inspect borrow receipts",
	}
	var byRecord bool
	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print the text of a stored receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withServer(ctx, "bookwise-cli", func(srv *server.Server) error {
				var (
					data []byte
					err  error
				)
				if byRecord {
					_, data, err = srv.Receipts.Document(ctx, args[0])
				} else {
					data, err = srv.Receipts.Open(ctx, args[0])
				}
				if err != nil {
					return err
				}
				doc, err := pdfutil.Extract(data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), doc.Text())
				return nil
			})
		},
	}
	show.Flags().BoolVar(&byRecord, "record", false, "Treat ID as a borrow record id and render its receipt")
	cmd.AddCommand(show)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServer(cmd.Context(), "bookwise-api", func(srv *server.Server) error {
				return srv.Serve(cmd.Context())
			})
		},
	}
}
