package workers

import (
	"log"
	"time"

	"github.com/immatt-0/lenbrary/internal/services"
)

// Overdue drives the time-based parts of the lending lifecycle: flagging
// loans past their due date and reminding borrowers a day ahead.
type Overdue struct {
	Borrowing *services.BorrowingService
	Interval  time.Duration
}

func NewOverdue(borrowing *services.BorrowingService, interval time.Duration) *Overdue {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Overdue{Borrowing: borrowing, Interval: interval}
}

// Start runs an immediate check, then repeats on the ticker.
func (w *Overdue) Start() {
	ticker := time.NewTicker(w.Interval)
	go func() {
		w.Check()
		for range ticker.C {
			w.Check()
		}
	}()
}

func (w *Overdue) Check() {
	flagged, err := w.Borrowing.MarkOverdueLoans()
	if err != nil {
		log.Printf("[ERROR] overdue worker: %v", err)
	} else if flagged > 0 {
		log.Printf("[INFO] overdue worker: %d loans flagged overdue", flagged)
	}

	reminded, err := w.Borrowing.SendDueSoonReminders()
	if err != nil {
		log.Printf("[ERROR] overdue worker: reminders: %v", err)
	} else if reminded > 0 {
		log.Printf("[INFO] overdue worker: %d due-soon reminders sent", reminded)
	}
}

// Cleanup removes expired unverified accounts and stale invitation codes.
type Cleanup struct {
	Accounts *services.AccountService
	Interval time.Duration
}

func NewCleanup(accounts *services.AccountService, interval time.Duration) *Cleanup {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cleanup{Accounts: accounts, Interval: interval}
}

func (w *Cleanup) Start() {
	ticker := time.NewTicker(w.Interval)
	go func() {
		w.Check()
		for range ticker.C {
			w.Check()
		}
	}()
}

func (w *Cleanup) Check() {
	if _, err := w.Accounts.CleanupExpiredUnverified(); err != nil {
		log.Printf("[ERROR] cleanup worker: unverified accounts: %v", err)
	}
	if _, err := w.Accounts.PurgeExpiredInvitations(); err != nil {
		log.Printf("[ERROR] cleanup worker: invitation codes: %v", err)
	}
}
