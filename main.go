package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nalanda-backend/internal/borrows"
	"nalanda-backend/internal/platform/config"
	"nalanda-backend/internal/platform/db"
	"nalanda-backend/internal/platform/mailer"
	"nalanda-backend/internal/users"
)

// @title        Nalanda Library API
// @version      1.0
// @description  Catalog, accounts, borrowing and circulation reports.
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "nalanda",
		Short:        "Nalanda library backend",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context(), cfgPath) },
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "path to config.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context(), cfgPath) },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create missing tables and indexes",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, conn, err := open(cmd.Context(), cfgPath)
				if err != nil {
					return err
				}
				return conn.Close()
			},
		},
		&cobra.Command{
			Use:   "sweep-overdue",
			Short: "Mark borrow records past their due date as overdue",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, conn, err := open(cmd.Context(), cfgPath)
				if err != nil {
					return err
				}
				defer conn.Close()
				n, err := borrows.NewService(conn, db.DialectFor(cfg.DB.Driver)).SweepOverdue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("%d record(s) marked overdue\n", n)
				return nil
			},
		},
		newCreateAdminCmd(&cfgPath),
	)
	return root
}

func newCreateAdminCmd(cfgPath *string) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			cfg, conn, err := open(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			svc := users.NewService(conn, mailer.LogMailer{}, newIssuer(cfg), cfg.FrontendURL)
			u, err := svc.CreateAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("admin %s <%s> created (id %s)\n", u.Name, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// open は設定を読み、DB に接続してスキーマを揃える
func open(ctx context.Context, cfgPath string) (*config.Config, *sql.DB, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[INFO] mode:%s driver:%s", cfg.Mode, cfg.DB.Driver)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, conn, db.DialectFor(cfg.DB.Driver)); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return cfg, conn, nil
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, conn, err := open(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, conn, mailer.New(cfg.SMTP)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLS() {
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(cfg.Server.Cert, cfg.Server.Key)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
