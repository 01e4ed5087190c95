package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ============================================================
// Background sweeps: overdue loans, expired holds, due-soon reminders
// ============================================================

// Schedule holds the cron specs of the background sweeps. An empty spec
// disables that job.
type Schedule struct {
	OverdueSweep string
	HoldExpiry   string
	DueSoon      string
}

// CronService runs the periodic circulation sweeps
type CronService struct {
	cron     *cron.Cron
	loans    *LoanService
	waitlist *WaitlistService
	schedule Schedule
	timeout  time.Duration
}

// NewCronService creates a new cron service
func NewCronService(loans *LoanService, waitlist *WaitlistService, schedule Schedule) *CronService {
	return &CronService{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		loans:    loans,
		waitlist: waitlist,
		schedule: schedule,
		timeout:  10 * time.Minute,
	}
}

// Start registers the jobs and starts the scheduler
func (s *CronService) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"overdue-sweep", s.schedule.OverdueSweep, s.sweepOverdue},
		{"hold-expiry", s.schedule.HoldExpiry, s.expireHolds},
		{"due-soon", s.schedule.DueSoon, s.remindDueSoon},
	}

	for _, job := range jobs {
		if job.spec == "" {
			log.Printf("⚠️ Cron job %s disabled", job.name)
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return err
		}
		log.Printf("⏰ Cron job %s scheduled (%s)", job.name, job.spec)
	}

	s.cron.Start()
	log.Println("🚀 CronService started")
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	log.Println("🛑 CronService stopped")
}

func (s *CronService) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		log.Printf("❌ Cron job %s error: %v", name, err)
	}
}

func (s *CronService) sweepOverdue(ctx context.Context) error {
	_, err := s.loans.SweepOverdue(ctx)
	return err
}

func (s *CronService) expireHolds(ctx context.Context) error {
	_, err := s.waitlist.ExpireHolds(ctx)
	return err
}

func (s *CronService) remindDueSoon(ctx context.Context) error {
	res, err := s.loans.RemindDueSoon(ctx)
	if err == nil && res.Updated > 0 {
		log.Printf("📨 Sent %d due-soon reminders", res.Updated)
	}
	return err
}
