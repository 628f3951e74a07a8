package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/auth"
	"github.com/immatt-0/lenbrary/internal/mail"
	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
)

// AccountService covers registration, email verification, login and the
// invitation codes that gate teacher self-registration.
type AccountService struct {
	db            *gorm.DB
	users         repositories.UserRepository
	students      repositories.StudentRepository
	verifications repositories.VerificationRepository
	invitations   repositories.InvitationRepository

	mailer mail.Mailer
	tokens *auth.Manager

	baseURL         string
	allowedDomain   string
	verificationTTL time.Duration
	invitationTTL   time.Duration
	now             func() time.Time
}

func NewAccountService(
	db *gorm.DB,
	users repositories.UserRepository,
	students repositories.StudentRepository,
	verifications repositories.VerificationRepository,
	invitations repositories.InvitationRepository,
	mailer mail.Mailer,
	tokens *auth.Manager,
	baseURL, allowedDomain string,
	verificationTTL, invitationTTL time.Duration,
) *AccountService {
	return &AccountService{
		db:              db,
		users:           users,
		students:        students,
		verifications:   verifications,
		invitations:     invitations,
		mailer:          mailer,
		tokens:          tokens,
		baseURL:         baseURL,
		allowedDomain:   allowedDomain,
		verificationTTL: verificationTTL,
		invitationTTL:   invitationTTL,
		now:             time.Now,
	}
}

// ─── Registration ─────────────────────────────────────────────────────────────

type RegisterInput struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	IsTeacher      bool   `json:"is_teacher"`
	InvitationCode string `json:"invitation_code"` // required for teachers

	// Student profile fields, required unless IsTeacher.
	StudentID    string `json:"student_id"`
	SchoolType   string `json:"school_type"`
	Department   string `json:"department"`
	StudentClass string `json:"student_class"`
	PhoneNumber  string `json:"phone_number"`
}

// Register creates an unverified account and sends the verification email.
// The account cannot log in until the link is visited, and is removed if it
// stays unverified past the configured lifetime.
func (s *AccountService) Register(in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if s.allowedDomain != "" && !strings.HasSuffix(email, "@"+s.allowedDomain) {
		return nil, fmt.Errorf("%w: email must belong to @%s", ErrValidation, s.allowedDomain)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if !in.IsTeacher && strings.TrimSpace(in.StudentID) == "" {
		return nil, fmt.Errorf("%w: student_id is required for students", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := models.UserRoleStudent
	if in.IsTeacher {
		role = models.UserRoleTeacher
	}
	user := &models.User{
		Email:        email,
		Username:     strings.SplitN(email, "@", 2)[0],
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
	}

	var verification *models.EmailVerification
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.GetByEmail(tx, email); err == nil {
			return fmt.Errorf("%w: email already registered", ErrValidation)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if _, err := s.users.GetByUsername(tx, user.Username); err == nil {
			return fmt.Errorf("%w: username already taken", ErrValidation)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if in.IsTeacher {
			if err := s.consumeInvitation(tx, in.InvitationCode, user); err != nil {
				return err
			}
		}

		if err := s.users.Create(tx, user); err != nil {
			return err
		}

		if !in.IsTeacher {
			profile := &models.Student{
				UserID:       user.ID,
				StudentID:    strings.TrimSpace(in.StudentID),
				SchoolType:   in.SchoolType,
				Department:   in.Department,
				StudentClass: in.StudentClass,
				PhoneNumber:  in.PhoneNumber,
			}
			if err := s.students.Create(tx, profile); err != nil {
				return err
			}
		}

		verification = &models.EmailVerification{
			UserID: user.ID,
			Token:  randomToken(24),
		}
		return s.verifications.Create(tx, verification)
	})
	if err != nil {
		return nil, err
	}

	s.sendVerificationMail(user, verification)
	log.Printf("[INFO] Register: %s account created for %s (id=%s)", role, user.Email, user.ID)
	return user, nil
}

func (s *AccountService) consumeInvitation(tx *gorm.DB, code string, user *models.User) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("%w: invitation_code is required for teachers", ErrValidation)
	}
	inv, err := s.invitations.GetByCode(tx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: invitation code is not valid", ErrValidation)
		}
		return err
	}
	if inv.UsedByID != nil {
		return fmt.Errorf("%w: invitation code was already used", ErrValidation)
	}
	if s.now().After(inv.ExpiresAt) {
		return fmt.Errorf("%w: invitation code has expired", ErrValidation)
	}
	inv.UsedByID = &user.ID
	return s.invitations.Save(tx, inv)
}

// ─── Email Verification ───────────────────────────────────────────────────────

// VerifyEmail activates the account behind a token. Expired tokens remove
// the account so the address can be registered again; re-verifying an
// already-verified account is a no-op.
func (s *AccountService) VerifyEmail(token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	v, err := s.verifications.GetByToken(nil, token)
	if err != nil {
		return notFoundOr(err, "verification token")
	}
	if v.IsVerified {
		return nil
	}
	if v.ExpiredAt(s.now(), s.verificationTTL) {
		if err := s.deleteAccount(v.UserID); err != nil {
			return err
		}
		return fmt.Errorf("%w: verification link expired, the account was removed; please register again", ErrUnauthorized)
	}
	v.IsVerified = true
	if err := s.verifications.Save(nil, v); err != nil {
		return err
	}
	log.Printf("[INFO] VerifyEmail: account %s verified", v.UserID)
	return nil
}

// ResendVerification issues a fresh token and re-sends the mail.
func (s *AccountService) ResendVerification(actor *models.User) error {
	v, err := s.verifications.GetByUserID(nil, actor.ID)
	if err != nil {
		return notFoundOr(err, "verification")
	}
	if v.IsVerified {
		return fmt.Errorf("%w: email already verified", ErrValidation)
	}
	v.Token = randomToken(24)
	if err := s.verifications.Save(nil, v); err != nil {
		return err
	}
	s.sendVerificationMail(actor, v)
	return nil
}

func (s *AccountService) sendVerificationMail(user *models.User, v *models.EmailVerification) {
	link := fmt.Sprintf("%s/api/verify-email?token=%s", s.baseURL, v.Token)
	body := fmt.Sprintf("Click the link to verify your email: %s", link)
	if err := s.mailer.Send(user.Email, "Verify your email", body); err != nil {
		// Delivery is at-least-once via resend; registration itself stands.
		log.Printf("[ERROR] sendVerificationMail: failed for %s: %v", user.Email, err)
		return
	}
	log.Printf("[INFO] sendVerificationMail: to=%s link=%s", user.Email, link)
}

// ─── Login ────────────────────────────────────────────────────────────────────

// Login resolves the identifier (full email or the part before the school
// domain), checks the password and verification state, and returns a signed
// access token.
func (s *AccountService) Login(identifier, password string) (string, *models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.resolveUser(identifier)
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("%w: wrong password", ErrUnauthorized)
	}

	v, err := s.verifications.GetByUserID(nil, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: account is not verified", ErrUnauthorized)
		}
		return "", nil, err
	}
	if !v.IsVerified {
		if v.ExpiredAt(s.now(), s.verificationTTL) {
			if err := s.deleteAccount(user.ID); err != nil {
				return "", nil, err
			}
			return "", nil, fmt.Errorf("%w: verification link expired and the account was removed; please register again", ErrUnauthorized)
		}
		return "", nil, fmt.Errorf("%w: account is not verified, check your email", ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AccountService) resolveUser(identifier string) (*models.User, error) {
	lookup := identifier
	if !strings.Contains(lookup, "@") && s.allowedDomain != "" {
		lookup = identifier + "@" + s.allowedDomain
	}
	if strings.Contains(lookup, "@") {
		if user, err := s.users.GetByEmail(nil, lookup); err == nil {
			return user, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// Fall back to the local part as a username.
		identifier = strings.SplitN(lookup, "@", 2)[0]
	}
	user, err := s.users.GetByUsername(nil, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no account found for the given credentials", ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// Profile returns the caller's borrower profile, or nil if none exists.
func (s *AccountService) Profile(actor *models.User) (*models.Student, error) {
	st, err := s.students.GetByUserID(nil, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

// GetUser loads a user by ID (used by the auth middleware).
func (s *AccountService) GetUser(id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(nil, id)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return user, nil
}

// ─── Invitation Codes ─────────────────────────────────────────────────────────

// CreateInvitation mints a short-lived single-use code for teacher
// registration. Librarian only.
func (s *AccountService) CreateInvitation(actor *models.User) (*models.InvitationCode, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	inv := &models.InvitationCode{
		Code:        strings.ToUpper(randomToken(4)),
		CreatedByID: actor.ID,
		ExpiresAt:   s.now().Add(s.invitationTTL),
	}
	if err := s.invitations.Create(nil, inv); err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateInvitation: code %s created by %s, expires %s", inv.Code, actor.ID, inv.ExpiresAt.Format(time.RFC3339))
	return inv, nil
}

func (s *AccountService) ListInvitations(actor *models.User) ([]models.InvitationCode, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	return s.invitations.List(nil)
}

func (s *AccountService) DeleteInvitation(actor *models.User, id uuid.UUID) error {
	if err := requireLibrarian(actor); err != nil {
		return err
	}
	return s.invitations.Delete(nil, id)
}

// CleanupExpiredInvitations removes expired unused codes; used codes are
// kept as an audit trail.
func (s *AccountService) CleanupExpiredInvitations(actor *models.User) (int64, error) {
	if err := requireLibrarian(actor); err != nil {
		return 0, err
	}
	return s.PurgeExpiredInvitations()
}

// PurgeExpiredInvitations is the actor-less variant driven by the
// background worker.
func (s *AccountService) PurgeExpiredInvitations() (int64, error) {
	return s.invitations.DeleteExpiredUnused(nil, s.now())
}

// ─── Cleanup ──────────────────────────────────────────────────────────────────

// CleanupExpiredUnverified removes accounts whose verification window has
// closed. Driven by the background worker.
func (s *AccountService) CleanupExpiredUnverified() (int, error) {
	cutoff := s.now().Add(-s.verificationTTL)
	stale, err := s.verifications.ListUnverifiedCreatedBefore(nil, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := range stale {
		if err := s.deleteAccount(stale[i].UserID); err != nil {
			log.Printf("[WARN] CleanupExpiredUnverified: user %s skipped: %v", stale[i].UserID, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("[INFO] CleanupExpiredUnverified: removed %d expired unverified accounts", removed)
	}
	return removed, nil
}

// deleteAccount removes a user and its dependent rows in one transaction.
func (s *AccountService) deleteAccount(userID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.verifications.DeleteByUserID(tx, userID); err != nil {
			return err
		}
		if err := s.students.DeleteByUserID(tx, userID); err != nil {
			return err
		}
		return s.users.Delete(tx, userID)
	})
}

// randomToken returns a hex token of 2*n characters.
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
