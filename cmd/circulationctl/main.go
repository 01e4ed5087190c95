package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"library-circulation/internal/adapters/persistence/models"
	"library-circulation/internal/config"
	"library-circulation/internal/core/domain"
	"library-circulation/internal/core/services"
	"library-circulation/internal/pkg/jwt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// circulationctl runs the maintenance operations of the circulation core
// against the configured database, outside the HTTP server.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type app struct {
	cfg  *config.Config
	db   *gorm.DB
	circ *services.Circulation
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "circulationctl",
		Short:        "Library circulation maintenance commands",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		a.migrateCmd(),
		a.sweepOverdueCmd(),
		a.expireHoldsCmd(),
		a.remindDueSoonCmd(),
		a.advanceQueueCmd(),
		a.tokenCmd(),
	)
	return root
}

// connect opens the database and wires the services with a log-only notifier
func (a *app) connect() error {
	db, err := config.ConnectDatabase(a.cfg)
	if err != nil {
		return err
	}
	a.db = db
	a.circ = services.NewCirculation(db, a.cfg.Policy, logPublisher{}, services.SystemClock(), services.ULIDGenerator())
	return nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the circulation tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			defer config.CloseDatabase()

			if err := models.AutoMigrate(a.db); err != nil {
				return err
			}
			log.Println("✅ Database migration completed")
			return nil
		},
	}
}

func (a *app) sweepOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark ACTIVE loans past their due date OVERDUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, func(ctx context.Context) (domain.SweepResult, error) {
				return a.circ.Loans.SweepOverdue(ctx)
			})
		},
	}
}

func (a *app) expireHoldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-holds",
		Short: "Expire queue holds that ran out and advance the queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, func(ctx context.Context) (domain.SweepResult, error) {
				return a.circ.Waitlist.ExpireHolds(ctx)
			})
		},
	}
}

func (a *app) remindDueSoonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind-due-soon",
		Short: "Send reminders for loans due within a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSweep(cmd, func(ctx context.Context) (domain.SweepResult, error) {
				return a.circ.Loans.RemindDueSoon(ctx)
			})
		},
	}
}

func (a *app) advanceQueueCmd() *cobra.Command {
	var bookID uint
	cmd := &cobra.Command{
		Use:   "advance-queue",
		Short: "Offer a free copy of a book to the next user in its queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bookID == 0 {
				return fmt.Errorf("--book is required")
			}
			if err := a.connect(); err != nil {
				return err
			}
			defer config.CloseDatabase()

			if err := a.circ.Waitlist.AdvanceQueue(cmd.Context(), bookID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue of book %d advanced\n", bookID)
			return nil
		},
	}
	cmd.Flags().UintVar(&bookID, "book", 0, "book ID")
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	var (
		userID  uint
		role    string
		minutes int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing (dev mode only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.IsDev() {
				return fmt.Errorf("token issuing is only available with APP_MODE=dev")
			}
			if userID == 0 {
				return fmt.Errorf("--user is required")
			}
			r := domain.Role(strings.ToUpper(role))
			switch r {
			case domain.RoleMember, domain.RoleLibrarian, domain.RoleAdmin:
			default:
				return fmt.Errorf("invalid role %q", role)
			}

			token, err := jwt.GenerateAccessToken(userID, fmt.Sprintf("user-%d", userID), string(r), a.cfg.JWT.Secret, minutes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user ID")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleMember), "MEMBER, LIBRARIAN or ADMIN")
	cmd.Flags().IntVar(&minutes, "minutes", 60, "token lifetime in minutes")
	return cmd
}

func (a *app) runSweep(cmd *cobra.Command, sweep func(ctx context.Context) (domain.SweepResult, error)) error {
	if err := a.connect(); err != nil {
		return err
	}
	defer config.CloseDatabase()

	res, err := sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d updated=%d failed=%d\n", res.Scanned, res.Updated, res.Failed)
	return nil
}

// logPublisher writes events synchronously; the CLI exits right after a run
type logPublisher struct{}

func (logPublisher) Publish(evt services.NotificationEvent) {
	if err := (services.LogSink{}).Deliver(context.Background(), evt); err != nil {
		log.Printf("❌ Notification %s failed: %v", evt.Type, err)
	}
}
