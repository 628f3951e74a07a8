package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
)

// ─── Transition Table ─────────────────────────────────────────────────────────

// transitions is the single source of truth for valid status changes.
// Any flip not listed here is rejected with ErrInvalidState; terminal states
// (RETURNED, REJECTED, CANCELLED) have no outgoing edges.
var transitions = map[models.BorrowingStatus][]models.BorrowingStatus{
	models.StatusRequested:      {models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusApproved:       {models.StatusReadyForPickup, models.StatusBorrowed, models.StatusCancelled},
	models.StatusReadyForPickup: {models.StatusBorrowed},
	models.StatusBorrowed:       {models.StatusReturned, models.StatusOverdue},
	models.StatusOverdue:        {models.StatusReturned},
}

func canTransition(from, to models.BorrowingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition flips the record's status after consulting the table.
func transition(b *models.Borrowing, to models.BorrowingStatus) error {
	if !canTransition(b.Status, to) {
		return fmt.Errorf("%w: cannot go from %s to %s", ErrInvalidState, b.Status, to)
	}
	b.Status = to
	return nil
}

// ─── Service ──────────────────────────────────────────────────────────────────

// BorrowingService is the single authority over the borrowing lifecycle and
// the associated stock movements. Every operation runs in one transaction
// that re-reads the record and book under a row lock, re-validates the
// preconditions against that fresh state, and commits atomically, so a
// failed operation never leaves a partial transition behind.
type BorrowingService struct {
	db            *gorm.DB
	users         repositories.UserRepository
	students      repositories.StudentRepository
	books         repositories.BookRepository
	borrowings    repositories.BorrowingRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository

	finePerDay float64
	now        func() time.Time
}

func NewBorrowingService(
	db *gorm.DB,
	users repositories.UserRepository,
	students repositories.StudentRepository,
	books repositories.BookRepository,
	borrowings repositories.BorrowingRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
	finePerDay float64,
) *BorrowingService {
	return &BorrowingService{
		db:            db,
		users:         users,
		students:      students,
		books:         books,
		borrowings:    borrowings,
		messages:      messages,
		notifications: notifications,
		finePerDay:    finePerDay,
		now:           time.Now,
	}
}

// ─── Request ──────────────────────────────────────────────────────────────────

// Request creates a new REQUESTED borrowing for the caller. The book row is
// locked first, which serializes concurrent requests for the same book and
// makes the one-active-record-per-borrower check safe.
func (s *BorrowingService) Request(actor *models.User, bookID uuid.UUID, durationDays int) (*models.Borrowing, error) {
	if !actor.CanBorrow() {
		return nil, fmt.Errorf("%w: only students and teachers can request books", ErrForbidden)
	}
	if durationDays == 0 {
		durationDays = models.DefaultLoanDurationDays
	}
	if !models.ValidLoanDuration(durationDays) {
		return nil, fmt.Errorf("%w: loan duration must be one of %v days", ErrValidation, models.LoanDurations)
	}

	var created *models.Borrowing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.books.GetByIDForUpdate(tx, bookID)
		if err != nil {
			return notFoundOr(err, "book")
		}

		borrower, err := s.borrowerFor(tx, actor)
		if err != nil {
			return err
		}

		if existing, err := s.borrowings.FindActive(tx, borrower.ID, book.ID); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		} else if existing != nil {
			return fmt.Errorf("%w (status: %s)", ErrDuplicateRequest, existing.Status)
		}

		if book.Stock <= 0 {
			return ErrNoStock
		}

		now := s.now()
		provisionalDue := now.AddDate(0, 0, durationDays)
		b := &models.Borrowing{
			BookID:           book.ID,
			StudentID:        borrower.ID,
			Status:           models.StatusRequested,
			RequestDate:      now,
			DueDate:          &provisionalDue,
			LoanDurationDays: durationDays,
		}
		if err := s.borrowings.Create(tx, b); err != nil {
			return err
		}

		if err := s.notifyLibrarians(tx, models.NotificationBookRequested,
			fmt.Sprintf("%s a solicitat '%s'", actor.DisplayName(), book.Name),
			&book.ID, &b.ID, &actor.ID); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Request: borrowing %s created for user %s / book %s (%d days)",
		created.ID, actor.ID, bookID, durationDays)
	return s.borrowings.GetByID(nil, created.ID)
}

// ─── Librarian Decisions ──────────────────────────────────────────────────────

// Approve moves a REQUESTED borrowing to APPROVED. Stock is deliberately not
// decremented here: an approved copy is a soft hold until pickup. The stock
// re-check only rejects approvals that can no longer be satisfied at all.
func (s *BorrowingService) Approve(actor *models.User, borrowingID uuid.UUID, note string) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if err := transition(b, models.StatusApproved); err != nil {
			return err
		}
		book, err := s.books.GetByIDForUpdate(tx, b.BookID)
		if err != nil {
			return err
		}
		if book.Stock <= 0 {
			return fmt.Errorf("%w: stock exhausted since the request was made", ErrNoStock)
		}

		now := s.now()
		b.ApprovedDate = &now
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		if err := s.attachNote(tx, actor, b, note); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationRequestApproved,
			fmt.Sprintf("Cererea ta pentru '%s' a fost aprobată", b.Book.Name),
			&b.BookID, &b.ID)
	})
}

// Reject moves a REQUESTED borrowing to the terminal REJECTED state.
func (s *BorrowingService) Reject(actor *models.User, borrowingID uuid.UUID, note string) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if err := transition(b, models.StatusRejected); err != nil {
			return err
		}
		now := s.now()
		b.ApprovedDate = &now // decision timestamp, kept for history ordering
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		if err := s.attachNote(tx, actor, b, note); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationRequestRejected,
			fmt.Sprintf("Cererea ta pentru '%s' a fost respinsă", b.Book.Name),
			&b.BookID, &b.ID)
	})
}

// MarkReady flags an APPROVED borrowing as waiting at the front desk.
func (s *BorrowingService) MarkReady(actor *models.User, borrowingID uuid.UUID) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if err := transition(b, models.StatusReadyForPickup); err != nil {
			return err
		}
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationReadyForPickup,
			fmt.Sprintf("'%s' este gata de ridicare", b.Book.Name),
			&b.BookID, &b.ID)
	})
}

// MarkPickup converts an approved request into a physical loan. This is the
// only stock-consuming step; the guarded decrement fails with ErrNoStock if
// the last copy left between approval and pickup.
func (s *BorrowingService) MarkPickup(actor *models.User, borrowingID uuid.UUID) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if err := transition(b, models.StatusBorrowed); err != nil {
			return err
		}
		if err := s.books.AdjustStock(tx, b.BookID, -1); err != nil {
			if errors.Is(err, repositories.ErrStockConflict) {
				return fmt.Errorf("%w: stock exhausted before pickup", ErrNoStock)
			}
			return err
		}

		now := s.now()
		due := now.AddDate(0, 0, b.LoanDurationDays)
		b.PickupDate = &now
		b.DueDate = &due
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationBookPickedUp,
			fmt.Sprintf("Ai împrumutat '%s'; termen de returnare: %s", b.Book.Name, due.Format("2006-01-02")),
			&b.BookID, &b.ID)
	})
}

// ─── Return & Cancel ──────────────────────────────────────────────────────────

// Return closes a BORROWED or OVERDUE loan, releases the copy back to stock
// and fixes the fine from the stored due date. The actor must be the owning
// borrower (self-service) or a librarian.
func (s *BorrowingService) Return(actor *models.User, borrowingID uuid.UUID) (*models.Borrowing, error) {
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if !actor.IsLibrarian() && b.Student.UserID != actor.ID {
			return fmt.Errorf("%w: not your loan", ErrForbidden)
		}
		if err := transition(b, models.StatusReturned); err != nil {
			return err
		}
		if err := s.books.AdjustStock(tx, b.BookID, 1); err != nil {
			if errors.Is(err, repositories.ErrStockConflict) {
				log.Printf("[WARN] Return: stock for book %s already at inventory, not incremented", b.BookID)
			} else {
				return err
			}
		}

		now := s.now()
		b.ReturnDate = &now
		b.FineAmount = CalculateFine(b.DueDate, now, s.finePerDay)
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		if b.FineAmount > 0 {
			log.Printf("[INFO] Return: borrowing %s returned late, fine %.2f", b.ID, b.FineAmount)
		}

		msg := fmt.Sprintf("'%s' a fost returnată de %s", b.Book.Name, b.Student.User.DisplayName())
		if actor.IsLibrarian() {
			return s.notifyUser(tx, b.Student.UserID, models.NotificationBookReturned,
				fmt.Sprintf("Returnarea cărții '%s' a fost înregistrată", b.Book.Name),
				&b.BookID, &b.ID)
		}
		return s.notifyLibrarians(tx, models.NotificationBookReturned, msg, &b.BookID, &b.ID, &actor.ID)
	})
}

// Cancel lets the owning borrower withdraw a request that has not yet turned
// into a physical loan (REQUESTED or APPROVED). There is no stock to return.
func (s *BorrowingService) Cancel(actor *models.User, borrowingID uuid.UUID) (*models.Borrowing, error) {
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if b.Student.UserID != actor.ID {
			return fmt.Errorf("%w: not your request", ErrForbidden)
		}
		if err := transition(b, models.StatusCancelled); err != nil {
			return err
		}
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		return s.notifyLibrarians(tx, models.NotificationRequestCancelled,
			fmt.Sprintf("%s a anulat cererea pentru '%s'", actor.DisplayName(), b.Book.Name),
			&b.BookID, &b.ID, &actor.ID)
	})
}

// ─── Extensions ───────────────────────────────────────────────────────────────

// RequestExtension records a pending extension request on a BORROWED loan.
// A loan may be extended at most once, ever; the status does not change.
func (s *BorrowingService) RequestExtension(actor *models.User, borrowingID uuid.UUID, requestedDays int, message string) (*models.Borrowing, error) {
	if requestedDays < 1 || requestedDays > 60 {
		return nil, fmt.Errorf("%w: requested_days must be between 1 and 60", ErrValidation)
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if b.Student.UserID != actor.ID {
			return fmt.Errorf("%w: not your loan", ErrForbidden)
		}
		if b.Status != models.StatusBorrowed {
			return fmt.Errorf("%w: extensions only apply to borrowed books (status: %s)", ErrInvalidState, b.Status)
		}
		if b.Extended {
			return fmt.Errorf("%w: loan was already extended once", ErrInvalidState)
		}

		b.ExtensionRequestedDays = requestedDays
		b.ExtensionMessage = message
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}

		// The request lands in every librarian's inbox as a message too.
		librarians, err := s.users.ListByRole(tx, models.UserRoleLibrarian)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("Cerere extindere împrumut: %d zile. Mesaj: %s", requestedDays, message)
		for i := range librarians {
			m := &models.Message{
				SenderID:    actor.ID,
				RecipientID: librarians[i].ID,
				BorrowingID: &b.ID,
				Content:     content,
			}
			if err := s.messages.Create(tx, m); err != nil {
				return err
			}
		}
		return s.notifyLibrarians(tx, models.NotificationExtensionRequested,
			fmt.Sprintf("%s a solicitat extinderea împrumutului pentru '%s' cu %d zile",
				actor.DisplayName(), b.Book.Name, requestedDays),
			&b.BookID, &b.ID, &actor.ID)
	})
}

// ApproveExtension grants the pending extension. The new due date extends
// the current one, or the present moment if the loan somehow has none.
// Passing requestedDays <= 0 grants exactly what the borrower asked for.
func (s *BorrowingService) ApproveExtension(actor *models.User, borrowingID uuid.UUID, requestedDays int, note string) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if b.ExtensionRequestedDays == 0 {
			return fmt.Errorf("%w: no pending extension request", ErrInvalidState)
		}
		if requestedDays <= 0 {
			requestedDays = b.ExtensionRequestedDays
		}

		if b.DueDate != nil {
			due := b.DueDate.AddDate(0, 0, requestedDays)
			b.DueDate = &due
		} else {
			due := s.now().AddDate(0, 0, requestedDays)
			b.DueDate = &due
		}
		b.Extended = true
		b.ExtensionRequestedDays = 0
		b.ExtensionMessage = ""
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		if err := s.attachNote(tx, actor, b, note); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationExtensionApproved,
			fmt.Sprintf("Cererea ta de prelungire pentru '%s' a fost aprobată", b.Book.Name),
			&b.BookID, &b.ID)
	})
}

// DeclineExtension clears the pending request without touching the due date;
// the borrower keeps the right to ask again.
func (s *BorrowingService) DeclineExtension(actor *models.User, borrowingID uuid.UUID, note string) (*models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.inRecordTx(borrowingID, func(tx *gorm.DB, b *models.Borrowing) error {
		if b.ExtensionRequestedDays == 0 {
			return fmt.Errorf("%w: no pending extension request", ErrInvalidState)
		}
		b.ExtensionRequestedDays = 0
		b.ExtensionMessage = ""
		if err := s.borrowings.Save(tx, b); err != nil {
			return err
		}
		if err := s.attachNote(tx, actor, b, note); err != nil {
			return err
		}
		return s.notifyUser(tx, b.Student.UserID, models.NotificationExtensionDeclined,
			fmt.Sprintf("Cererea ta de prelungire pentru '%s' a fost respinsă", b.Book.Name),
			&b.BookID, &b.ID)
	})
}

// ─── Overdue Scanning ─────────────────────────────────────────────────────────

// MarkOverdueLoans flips BORROWED loans past their due date to OVERDUE and
// notifies the borrowers. It is driven by the background worker; each loan
// is handled in its own transaction so one failure does not block the rest.
func (s *BorrowingService) MarkOverdueLoans() (int, error) {
	due, err := s.borrowings.ListDueBefore(nil, models.StatusBorrowed, s.now())
	if err != nil {
		return 0, err
	}
	flipped := 0
	for i := range due {
		if _, err := s.inRecordTx(due[i].ID, func(tx *gorm.DB, b *models.Borrowing) error {
			if err := transition(b, models.StatusOverdue); err != nil {
				return err // re-read state changed; skip
			}
			if err := s.borrowings.Save(tx, b); err != nil {
				return err
			}
			return s.notifyUser(tx, b.Student.UserID, models.NotificationBookOverdue,
				fmt.Sprintf("'%s' a depășit termenul de returnare (%s)", b.Book.Name, b.DueDate.Format("2006-01-02")),
				&b.BookID, &b.ID)
		}); err != nil {
			log.Printf("[WARN] MarkOverdueLoans: borrowing %s skipped: %v", due[i].ID, err)
			continue
		}
		flipped++
	}
	return flipped, nil
}

// SendDueSoonReminders notifies borrowers whose loans fall due within the
// next 24 hours. At-least-once delivery; duplicates are harmless.
func (s *BorrowingService) SendDueSoonReminders() (int, error) {
	now := s.now()
	soon, err := s.borrowings.ListDueBetween(nil, models.StatusBorrowed, now, now.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}
	for i := range soon {
		b := &soon[i]
		err := s.notifyUser(nil, b.Student.UserID, models.NotificationDueSoon,
			fmt.Sprintf("'%s' trebuie returnată până pe %s", b.Book.Name, b.DueDate.Format("2006-01-02")),
			&b.BookID, &b.ID)
		if err != nil {
			return i, err
		}
	}
	return len(soon), nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// MyBorrowings returns the caller's full borrowing history, newest first.
func (s *BorrowingService) MyBorrowings(actor *models.User) ([]models.Borrowing, error) {
	if !actor.CanBorrow() {
		return nil, fmt.Errorf("%w: only students and teachers have borrowings", ErrForbidden)
	}
	borrower, err := s.students.GetByUserID(nil, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Borrowing{}, nil // no requests yet
		}
		return nil, err
	}
	return s.borrowings.ListByStudent(nil, borrower.ID)
}

func (s *BorrowingService) PendingRequests(actor *models.User) ([]models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.borrowings.ListByStatus(nil, models.StatusRequested)
}

func (s *BorrowingService) ActiveLoans(actor *models.User) ([]models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.borrowings.ListByStatus(nil, models.StatusBorrowed, models.StatusOverdue)
}

func (s *BorrowingService) LoanHistory(actor *models.User) ([]models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.borrowings.ListByStatus(nil, models.StatusReturned, models.StatusRejected, models.StatusCancelled)
}

func (s *BorrowingService) AllRequests(actor *models.User) ([]models.Borrowing, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.borrowings.ListAll(nil)
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// inRecordTx locks the borrowing row, runs fn against the fresh state and
// returns the reloaded record on success.
func (s *BorrowingService) inRecordTx(borrowingID uuid.UUID, fn func(tx *gorm.DB, b *models.Borrowing) error) (*models.Borrowing, error) {
	var updated *models.Borrowing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		b, err := s.borrowings.GetByIDForUpdate(tx, borrowingID)
		if err != nil {
			return notFoundOr(err, "borrowing")
		}
		if err := fn(tx, b); err != nil {
			return err
		}
		updated, err = s.borrowings.GetByID(tx, borrowingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// borrowerFor resolves the actor's borrower profile, creating one lazily for
// teachers on their first request.
func (s *BorrowingService) borrowerFor(tx *gorm.DB, actor *models.User) (*models.Student, error) {
	borrower, err := s.students.GetByUserID(tx, actor.ID)
	if err == nil {
		return borrower, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if actor.Role != models.UserRoleTeacher {
		return nil, fmt.Errorf("%w: no borrower profile", ErrForbidden)
	}
	borrower = &models.Student{
		UserID:    actor.ID,
		StudentID: "T-" + actor.ID.String()[:8],
	}
	if err := s.students.Create(tx, borrower); err != nil {
		return nil, err
	}
	log.Printf("[INFO] borrowerFor: created borrower profile %s for teacher %s", borrower.StudentID, actor.ID)
	return borrower, nil
}

// attachNote persists an optional librarian note as a Message to the borrower.
func (s *BorrowingService) attachNote(tx *gorm.DB, librarian *models.User, b *models.Borrowing, note string) error {
	if note == "" {
		return nil
	}
	return s.messages.Create(tx, &models.Message{
		SenderID:    librarian.ID,
		RecipientID: b.Student.UserID,
		BorrowingID: &b.ID,
		Content:     note,
	})
}

func (s *BorrowingService) notifyLibrarians(tx *gorm.DB, typ models.NotificationType, message string, bookID, borrowingID, createdBy *uuid.UUID) error {
	return s.notifications.Create(tx, &models.Notification{
		ForLibrarians: true,
		Type:          typ,
		Message:       message,
		BookID:        bookID,
		BorrowingID:   borrowingID,
		CreatedByID:   createdBy,
	})
}

func (s *BorrowingService) notifyUser(tx *gorm.DB, userID uuid.UUID, typ models.NotificationType, message string, bookID, borrowingID *uuid.UUID) error {
	uid := userID
	return s.notifications.Create(tx, &models.Notification{
		UserID:      &uid,
		Type:        typ,
		Message:     message,
		BookID:      bookID,
		BorrowingID: borrowingID,
	})
}

func requireLibrarian(actor *models.User) error {
	if !actor.IsLibrarian() {
		return fmt.Errorf("%w: librarian role required", ErrForbidden)
	}
	return nil
}

// notFoundOr maps gorm's record-not-found onto the service sentinel.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
