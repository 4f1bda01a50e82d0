package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Rawan567/blood-diagnosis-api/internal/config"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/account"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/history"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/medtest"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/message"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/stats"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/mail"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/middleware"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/storage"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blood-server",
		Short: "Blood Diagnosis System web server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(cleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

// seedCmd inserts the rows a fresh install needs: the default admin account
// and the two classifier model records. Running it twice is safe.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default admin account and classifier models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := seedAdmin(ctx, user.NewRepo(pool)); err != nil {
				return err
			}
			return seedModels(ctx, medtest.NewRepo(pool))
		},
	}
}

func seedAdmin(ctx context.Context, users user.Repository) error {
	existing, err := users.GetByUsername(ctx, "admin")
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("seed admin: %w", err)
	}
	if existing != nil {
		fmt.Println("Admin user already exists, skipping.")
		return nil
	}

	hash, err := auth.HashPassword("123456789")
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	u := &user.User{
		Username: "admin",
		Password: hash,
		FName:    "Admin",
		LName:    "User",
		Gender:   strPtr("male"),
		Email:    "admin@gmail.com",
		Role:     user.RoleAdmin,
		Phone:    strPtr("1234567890"),
		Address:  strPtr("System Administrator"),
		IsActive: true,
	}
	if err := users.Create(ctx, u); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	fmt.Println("Created admin user (username: admin). Change the default password after first login.")
	return nil
}

func seedModels(ctx context.Context, tests medtest.Repository) error {
	seeds := []medtest.Model{
		{Name: medtest.CBCModelName, Accuracy: 95.0},
		{Name: medtest.ImageModelName, Accuracy: 92.30},
	}

	for _, m := range seeds {
		_, err := tests.ModelByName(ctx, m.Name)
		if err == nil {
			fmt.Printf("Model %q already exists, skipping.\n", m.Name)
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("seed models: %w", err)
		}

		record := m
		if err := tests.CreateModel(ctx, &record); err != nil {
			return fmt.Errorf("seed models: %w", err)
		}
		fmt.Printf("Created model %q (accuracy %.2f%%).\n", m.Name, m.Accuracy)
	}
	return nil
}

// createAdminCmd registers an additional administrator account. Unlike seed
// it takes its values from flags so it can run non-interactively.
func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			fname, _ := cmd.Flags().GetString("fname")
			lname, _ := cmd.Flags().GetString("lname")
			password, _ := cmd.Flags().GetString("password")

			username = strings.TrimSpace(username)
			email = strings.TrimSpace(email)
			fname = strings.TrimSpace(fname)
			lname = strings.TrimSpace(lname)

			if username == "" || email == "" || fname == "" || lname == "" {
				return fmt.Errorf("username, email, fname and lname are all required")
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters long")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			users := user.NewRepo(pool)

			if _, err := users.GetByUsername(ctx, username); err == nil {
				return fmt.Errorf("username %q is already taken", username)
			} else if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if _, err := users.GetByEmail(ctx, email); err == nil {
				return fmt.Errorf("email %q is already registered", email)
			} else if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			u := &user.User{
				Username: username,
				Password: hash,
				FName:    fname,
				LName:    lname,
				Email:    email,
				Role:     user.RoleAdmin,
				IsActive: true,
			}
			if err := users.Create(ctx, u); err != nil {
				return err
			}

			fmt.Printf("Created admin account %q (%s).\n", username, email)
			return nil
		},
	}

	cmd.Flags().String("username", "", "Login name for the new admin")
	cmd.Flags().String("email", "", "Email address for the new admin")
	cmd.Flags().String("fname", "", "First name")
	cmd.Flags().String("lname", "", "Last name")
	cmd.Flags().String("password", "", "Password (minimum 8 characters)")

	return cmd
}

// cleanupCmd purges expired password-reset tokens and permanently deletes
// accounts that have been deactivated for longer than the retention window.
// Intended to run from cron.
func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired reset tokens and long-deactivated accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			// The cleanup path never sends mail, so a log-only mailer is enough.
			svc := account.NewService(
				user.NewRepo(pool),
				account.NewRepo(pool),
				mail.NewLogMailer(logger),
				db.NewTxRunner(pool),
				logger,
				cfg.BaseURL,
			)

			retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
			report, err := svc.Cleanup(ctx, retention)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Printf("Purged %d expired reset token(s).\n", report.TokensPurged)
			fmt.Printf("Deleted %d account(s) deactivated for more than %d days.\n",
				report.AccountsDeleted, cfg.RetentionDays)
			return nil
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	logger.Info().Msg("connected to database")

	var mailer mail.Mailer
	if cfg.MailConfigured() {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		mailer = mail.NewLogMailer(logger)
		logger.Warn().Msg("SMTP not configured, outbound mail will be logged instead of sent")
	}

	store := storage.NewDiskStore(cfg.UploadsDir)
	tx := db.NewTxRunner(pool)

	// Repositories
	userRepo := user.NewRepo(pool)
	tokenRepo := account.NewRepo(pool)
	careRepo := care.NewRepo(pool)
	historyRepo := history.NewRepo(pool)
	testRepo := medtest.NewRepo(pool)
	messageRepo := message.NewRepo(pool)
	statsRepo := stats.NewRepo(pool)

	// Services
	userSvc := user.NewService(userRepo, store, tx)
	careSvc := care.NewService(careRepo)
	accountSvc := account.NewService(userRepo, tokenRepo, mailer, tx, logger, cfg.BaseURL)
	historySvc := history.NewService(historyRepo, careSvc)
	testSvc := medtest.NewService(testRepo, userRepo, careSvc, historySvc, store, tx, logger)
	messageSvc := message.NewService(messageRepo)
	statsSvc := stats.NewService(statsRepo, testRepo, historyRepo)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = web.NewTemplateRenderer(cfg.TemplatesDir, cfg.IsDev())
	e.HTTPErrorHandler = errorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "16M"))
	e.Use(auth.Session(cfg.SessionKey(), userSvc.LoadPrincipal))

	// Static assets and uploaded files (profile images, blood images, CSVs)
	e.Static("/static", cfg.StaticDir)
	e.Static("/uploads", cfg.UploadsDir)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	sessionTTL := time.Duration(cfg.SessionTTL) * time.Hour

	// Handlers
	accountHandler := account.NewHandler(accountSvc, cfg.SessionKey(), sessionTTL)
	userHandler := user.NewHandler(userSvc, careSvc)
	careHandler := care.NewHandler(careSvc)
	historyHandler := history.NewHandler(historySvc)
	testHandler := medtest.NewHandler(testSvc)
	messageHandler := message.NewHandler(messageSvc)
	statsHandler := stats.NewHandler(statsSvc)

	// Public pages: home, about, auth, contact, model overview.
	accountHandler.RegisterRoutes(e)
	messageHandler.RegisterPublicRoutes(e)
	testHandler.RegisterPublicRoutes(e)

	// Role-scoped groups. Admin passes the doctor and patient guards so the
	// admin account can inspect both sides of the system.
	adminGroup := e.Group("/admin", auth.RequireRole("admin"))
	doctorGroup := e.Group("/doctor", auth.RequireRole("doctor", "admin"), auth.RequireActive())
	patientGroup := e.Group("/patient", auth.RequireRole("patient", "admin"), auth.RequireActive())

	statsHandler.RegisterRoutes(adminGroup, doctorGroup, patientGroup)
	userHandler.RegisterAdminRoutes(adminGroup)
	userHandler.RegisterDoctorRoutes(doctorGroup)
	userHandler.RegisterAccountRoutes(adminGroup, "admin")
	userHandler.RegisterAccountRoutes(doctorGroup, "doctor")
	userHandler.RegisterAccountRoutes(patientGroup, "patient")
	careHandler.RegisterRoutes(doctorGroup, patientGroup)
	historyHandler.RegisterRoutes(doctorGroup, patientGroup)
	testHandler.RegisterAdminRoutes(adminGroup)
	testHandler.RegisterDoctorRoutes(doctorGroup)
	testHandler.RegisterPatientRoutes(patientGroup)
	messageHandler.RegisterAdminRoutes(adminGroup)

	// Account deletion must stay reachable after deactivation, so it mounts
	// on a group without the active-account gate.
	accountHandler.RegisterPatientRoutes(e.Group("/patient"))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// errorHandler renders HTML error pages for browser requests and JSON for
// API clients. Pages exist for 401, 403, 404 and 500; anything else falls
// back to plain text.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := "Internal server error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = fmt.Sprintf("%v", he.Message)
		}

		if code >= 500 {
			logger.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Str("method", c.Request().Method).
				Msg("request failed")
		}

		if strings.Contains(c.Request().Header.Get("Accept"), "application/json") {
			_ = c.JSON(code, map[string]string{"detail": detail})
			return
		}

		page := "errors/500"
		switch code {
		case http.StatusUnauthorized:
			page = "errors/401"
		case http.StatusForbidden:
			page = "errors/403"
		case http.StatusNotFound:
			page = "errors/404"
		}
		if renderErr := c.Render(code, page, echo.Map{"Message": detail}); renderErr != nil {
			_ = c.String(code, detail)
		}
	}
}

func strPtr(s string) *string {
	return &s
}
