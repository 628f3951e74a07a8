package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent   UserRole = "STUDENT"
	UserRoleTeacher   UserRole = "TEACHER"
	UserRoleLibrarian UserRole = "LIBRARIAN"
)

// BorrowingStatus is the closed set of borrowing record states.
// Terminal states (RETURNED, REJECTED, CANCELLED) are never left again;
// records in them are kept as loan history.
type BorrowingStatus string

const (
	StatusRequested      BorrowingStatus = "REQUESTED"
	StatusApproved       BorrowingStatus = "APPROVED"
	StatusReadyForPickup BorrowingStatus = "READY_FOR_PICKUP"
	StatusBorrowed       BorrowingStatus = "BORROWED"
	StatusReturned       BorrowingStatus = "RETURNED"
	StatusOverdue        BorrowingStatus = "OVERDUE"
	StatusRejected       BorrowingStatus = "REJECTED"
	StatusCancelled      BorrowingStatus = "CANCELLED"
)

// ActiveStatuses are the non-terminal states. A borrower may hold at most
// one borrowing in any of these per book.
var ActiveStatuses = []BorrowingStatus{
	StatusRequested,
	StatusApproved,
	StatusReadyForPickup,
	StatusBorrowed,
	StatusOverdue,
}

// Terminal reports whether s is a final state.
func (s BorrowingStatus) Terminal() bool {
	switch s {
	case StatusReturned, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// LoanDurations are the allowed loan lengths in days.
var LoanDurations = []int{7, 14, 30, 60}

// DefaultLoanDurationDays is used when a request does not specify a duration.
const DefaultLoanDurationDays = 14

// ValidLoanDuration reports whether days is one of the allowed loan lengths.
func ValidLoanDuration(days int) bool {
	for _, d := range LoanDurations {
		if d == days {
			return true
		}
	}
	return false
}

type NotificationType string

const (
	NotificationBookAdded          NotificationType = "book_added"
	NotificationStockUpdated       NotificationType = "stock_updated"
	NotificationBookRequested      NotificationType = "book_requested"
	NotificationRequestApproved    NotificationType = "request_approved"
	NotificationRequestRejected    NotificationType = "request_rejected"
	NotificationRequestCancelled   NotificationType = "request_cancelled"
	NotificationReadyForPickup     NotificationType = "ready_for_pickup"
	NotificationBookPickedUp       NotificationType = "book_picked_up"
	NotificationBookReturned       NotificationType = "book_returned"
	NotificationBookOverdue        NotificationType = "book_overdue"
	NotificationDueSoon            NotificationType = "due_soon"
	NotificationExtensionRequested NotificationType = "extension_requested"
	NotificationExtensionApproved  NotificationType = "extension_approved"
	NotificationExtensionDeclined  NotificationType = "extension_declined"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	Role         UserRole  `gorm:"size:20;not null;index" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u *User) IsLibrarian() bool { return u.Role == UserRoleLibrarian }

// CanBorrow reports whether the user may request book loans.
func (u *User) CanBorrow() bool {
	return u.Role == UserRoleStudent || u.Role == UserRoleTeacher
}

// Student is the borrower profile attached to a user. Teachers receive one
// lazily (with a T-prefixed StudentID) on their first borrow request.
type Student struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	User         User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	StudentID    string    `gorm:"size:50;uniqueIndex;not null" json:"student_id"`
	SchoolType   string    `gorm:"size:10" json:"school_type,omitempty"`
	Department   string    `gorm:"size:100" json:"department,omitempty"`
	StudentClass string    `gorm:"size:10" json:"student_class,omitempty"`
	PhoneNumber  string    `gorm:"size:15" json:"phone_number,omitempty"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	Author          string    `gorm:"size:255;not null" json:"author"`
	Inventory       int       `gorm:"not null" json:"inventory"`
	Stock           int       `gorm:"not null" json:"stock"`
	Description     string    `gorm:"type:text" json:"description,omitempty"`
	Category        string    `gorm:"size:100" json:"category,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	ThumbnailURL    string    `gorm:"size:500" json:"thumbnail_url,omitempty"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Borrowing is one loan lifecycle of a book by a borrower, from request to a
// terminal disposition. Rows are never deleted.
type Borrowing struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BookID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"book_id"`
	Book             Book            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"book"`
	StudentID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	Student          Student         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"student"`
	Status           BorrowingStatus `gorm:"size:20;not null;index" json:"status"`
	RequestDate      time.Time       `gorm:"not null" json:"request_date"`
	ApprovedDate     *time.Time      `json:"approved_date,omitempty"`
	PickupDate       *time.Time      `json:"pickup_date,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	ReturnDate       *time.Time      `json:"return_date,omitempty"`
	LoanDurationDays int             `gorm:"not null;default:14" json:"loan_duration_days"`
	FineAmount       float64         `gorm:"not null;default:0" json:"fine_amount"`

	// Pending extension request; cleared once a librarian decides.
	// Extended stays true forever after the single allowed extension.
	Extended               bool   `gorm:"not null;default:false" json:"extended"`
	ExtensionRequestedDays int    `json:"extension_requested_days,omitempty"`
	ExtensionMessage       string `gorm:"type:text" json:"extension_message,omitempty"`
}

func (b *Borrowing) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	Sender         User       `gorm:"foreignKey:SenderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	RecipientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Recipient      User       `gorm:"foreignKey:RecipientID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BorrowingID    *uuid.UUID `gorm:"type:uuid;index" json:"borrowing_id,omitempty"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	IsRead         bool       `gorm:"not null;default:false" json:"is_read"`
	ConversationID string     `gorm:"size:100;index" json:"conversation_id"`
	CreatedAt      time.Time  `json:"timestamp"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ConversationID == "" {
		m.ConversationID = ConversationID(m.SenderID, m.RecipientID)
	}
	return nil
}

// ConversationID derives a stable conversation key for a pair of users,
// independent of who sent first.
func ConversationID(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("conv_%s_%s", lo, hi)
}

// Notification is addressed either to the whole librarian pool
// (ForLibrarians=true, UserID nil) or to one specific user.
type Notification struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        *uuid.UUID       `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ForLibrarians bool             `gorm:"not null;default:false;index" json:"for_librarians"`
	Type          NotificationType `gorm:"size:30;not null" json:"type"`
	Message       string           `gorm:"type:text;not null" json:"message"`
	BookID        *uuid.UUID       `gorm:"type:uuid" json:"book_id,omitempty"`
	BorrowingID   *uuid.UUID       `gorm:"type:uuid" json:"borrowing_id,omitempty"`
	CreatedByID   *uuid.UUID       `gorm:"type:uuid" json:"created_by_id,omitempty"`
	IsRead        bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt     time.Time        `json:"timestamp"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// EmailVerification gates login: accounts stay unusable until the token is
// visited, and unverified accounts expire.
type EmailVerification struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token      string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func (v *EmailVerification) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// ExpiredAt reports whether an unverified token is past its lifetime.
func (v *EmailVerification) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !v.IsVerified && now.After(v.CreatedAt.Add(ttl))
}

// InvitationCode authorizes teacher self-registration.
type InvitationCode struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string     `gorm:"size:16;uniqueIndex;not null" json:"code"`
	CreatedByID uuid.UUID  `gorm:"type:uuid;not null" json:"created_by_id"`
	CreatedBy   User       `gorm:"foreignKey:CreatedByID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UsedByID    *uuid.UUID `gorm:"type:uuid" json:"used_by_id,omitempty"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (c *InvitationCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// All lists every model for migration wiring.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Student{},
		&Book{},
		&Borrowing{},
		&Message{},
		&Notification{},
		&EmailVerification{},
		&InvitationCode{},
	}
}
