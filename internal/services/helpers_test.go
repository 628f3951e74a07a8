package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/immatt-0/lenbrary/internal/auth"
	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
)

// recorderMailer captures outgoing mail for assertions.
type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recorderMailer struct {
	sent []sentMail
}

func (m *recorderMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// fixture wires every service against an in-memory database and a fixed,
// manually advanced clock.
type fixture struct {
	db *gorm.DB

	users         repositories.UserRepository
	students      repositories.StudentRepository
	books         repositories.BookRepository
	borrowings    repositories.BorrowingRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	verifications repositories.VerificationRepository
	invitations   repositories.InvitationRepository

	mailer *recorderMailer
	tokens *auth.Manager

	accounts  *AccountService
	catalog   *CatalogService
	borrowing *BorrowingService
	messaging *MessagingService

	clock time.Time
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the whole test on one in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	f := &fixture{
		db:            db,
		users:         repositories.NewUserRepository(db),
		students:      repositories.NewStudentRepository(db),
		books:         repositories.NewBookRepository(db),
		borrowings:    repositories.NewBorrowingRepository(db),
		messages:      repositories.NewMessageRepository(db),
		notifications: repositories.NewNotificationRepository(db),
		verifications: repositories.NewVerificationRepository(db),
		invitations:   repositories.NewInvitationRepository(db),
		mailer: &recorderMailer{},
		tokens: auth.NewManager("test_secret", time.Hour),
		// Anchored to real time: gorm stamps created_at columns itself, and
		// expiry checks compare them against this clock.
		clock: time.Now().UTC().Truncate(time.Second),
	}

	f.accounts = NewAccountService(
		db, f.users, f.students, f.verifications, f.invitations,
		f.mailer, f.tokens,
		"http://localhost:8080", "",
		6*time.Hour, 6*time.Hour,
	)
	f.catalog = NewCatalogService(db, f.books, f.notifications)
	f.borrowing = NewBorrowingService(
		db, f.users, f.students, f.books, f.borrowings,
		f.messages, f.notifications,
		1.00,
	)
	f.messaging = NewMessagingService(f.users, f.borrowings, f.messages, f.notifications)

	now := func() time.Time { return f.clock }
	f.accounts.now = now
	f.borrowing.now = now
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// backdateVerification ages a verification row, simulating time passing
// without moving the clock away from the row timestamps gorm writes.
func (f *fixture) backdateVerification(t *testing.T, userID uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.EmailVerification{}).
		Where("user_id = ?", userID).
		Update("created_at", f.clock.Add(-age)).Error)
}

// ─── Seed Helpers ─────────────────────────────────────────────────────────────

func (f *fixture) seedUser(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	f.seq++
	email := fmt.Sprintf("user%d@example.com", f.seq)
	u := &models.User{
		Email:        email,
		Username:     strings.SplitN(email, "@", 2)[0],
		PasswordHash: "unused",
		FirstName:    "Test",
		LastName:     fmt.Sprintf("User%d", f.seq),
		Role:         role,
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) seedLibrarian(t *testing.T) *models.User {
	return f.seedUser(t, models.UserRoleLibrarian)
}

// seedStudent creates a student user together with its borrower profile.
func (f *fixture) seedStudent(t *testing.T) (*models.User, *models.Student) {
	t.Helper()
	u := f.seedUser(t, models.UserRoleStudent)
	st := &models.Student{
		UserID:       u.ID,
		StudentID:    fmt.Sprintf("S-%d", f.seq),
		SchoolType:   "liceu",
		StudentClass: "XI-A",
	}
	require.NoError(t, f.db.Create(st).Error)
	return u, st
}

func (f *fixture) seedBook(t *testing.T, name string, stock, inventory int) *models.Book {
	t.Helper()
	b := &models.Book{
		Name:      name,
		Author:    "Ion Creangă",
		Stock:     stock,
		Inventory: inventory,
	}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func (f *fixture) reloadBook(t *testing.T, id interface{}) *models.Book {
	t.Helper()
	var b models.Book
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return &b
}

// borrowedLoan runs the full happy path up to BORROWED and returns the record.
func (f *fixture) borrowedLoan(t *testing.T, borrower *models.User, librarian *models.User, book *models.Book) *models.Borrowing {
	t.Helper()
	b, err := f.borrowing.Request(borrower, book.ID, 14)
	require.NoError(t, err)
	_, err = f.borrowing.Approve(librarian, b.ID, "")
	require.NoError(t, err)
	b, err = f.borrowing.MarkPickup(librarian, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusBorrowed, b.Status)
	return b
}
