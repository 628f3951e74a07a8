package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/models"
)

const testPassword = "parola123"

func registerStudent(t *testing.T, f *fixture, email string) *models.User {
	t.Helper()
	u, err := f.accounts.Register(RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ana",
		LastName:  "Popescu",
		StudentID: "REG-" + email,
	})
	require.NoError(t, err)
	return u
}

func verificationFor(t *testing.T, f *fixture, user *models.User) *models.EmailVerification {
	t.Helper()
	var v models.EmailVerification
	require.NoError(t, f.db.First(&v, "user_id = ?", user.ID).Error)
	return &v
}

func TestRegisterStudent(t *testing.T) {
	f := newFixture(t)

	u := registerStudent(t, f, "elena@example.com")
	assert.Equal(t, models.UserRoleStudent, u.Role)
	assert.Equal(t, "elena", u.Username)

	// Borrower profile and verification row exist.
	var st models.Student
	require.NoError(t, f.db.First(&st, "user_id = ?", u.ID).Error)
	v := verificationFor(t, f, u)
	assert.False(t, v.IsVerified)
	assert.Len(t, v.Token, 48)

	// The verification mail went out with the token link.
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "elena@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Body, v.Token)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.accounts.Register(RegisterInput{Email: "not-an-email", Password: testPassword, StudentID: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.accounts.Register(RegisterInput{Email: "a@b.com", Password: "scurt", StudentID: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	// Students must supply a student ID.
	_, err = f.accounts.Register(RegisterInput{Email: "a@b.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	registerStudent(t, f, "dan@example.com")

	_, err := f.accounts.Register(RegisterInput{
		Email:     "Dan@Example.com",
		Password:  testPassword,
		StudentID: "ALT-1",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterEnforcesEmailDomain(t *testing.T) {
	f := newFixture(t)
	f.accounts.allowedDomain = "nlenau.ro"

	_, err := f.accounts.Register(RegisterInput{Email: "cineva@gmail.com", Password: testPassword, StudentID: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.accounts.Register(RegisterInput{Email: "cineva@nlenau.ro", Password: testPassword, StudentID: "x"})
	assert.NoError(t, err)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := newFixture(t)
	u := registerStudent(t, f, "ioana@example.com")

	_, _, err := f.accounts.Login("ioana@example.com", testPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.accounts.VerifyEmail(verificationFor(t, f, u).Token))

	token, logged, err := f.accounts.Login("ioana@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	// The issued token identifies the caller.
	parsed, err := f.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, parsed)
}

func TestLoginByUsernameAndWrongPassword(t *testing.T) {
	f := newFixture(t)
	u := registerStudent(t, f, "mihai@example.com")
	require.NoError(t, f.accounts.VerifyEmail(verificationFor(t, f, u).Token))

	_, logged, err := f.accounts.Login("mihai", testPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	_, _, err = f.accounts.Login("mihai", "gresita12")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = f.accounts.Login("nimeni", testPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyEmailIdempotentAndExpiry(t *testing.T) {
	f := newFixture(t)
	u := registerStudent(t, f, "vlad@example.com")
	token := verificationFor(t, f, u).Token

	require.NoError(t, f.accounts.VerifyEmail(token))
	// Second visit of the same link is a no-op.
	require.NoError(t, f.accounts.VerifyEmail(token))

	// An expired link removes the account entirely.
	u2 := registerStudent(t, f, "tarziu@example.com")
	token2 := verificationFor(t, f, u2).Token
	f.backdateVerification(t, u2.ID, 7*time.Hour)

	err := f.accounts.VerifyEmail(token2)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, f.db.First(&models.User{}, "id = ?", u2.ID).Error, gorm.ErrRecordNotFound)

	// The address is free for a fresh registration.
	_, err = f.accounts.Register(RegisterInput{Email: "tarziu@example.com", Password: testPassword, StudentID: "NEW-1"})
	assert.NoError(t, err)
}

func TestLoginExpiredUnverifiedDeletesAccount(t *testing.T) {
	f := newFixture(t)
	u := registerStudent(t, f, "uitat@example.com")

	f.backdateVerification(t, u.ID, 7*time.Hour)
	_, _, err := f.accounts.Login("uitat@example.com", testPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, f.db.First(&models.User{}, "id = ?", u.ID).Error, gorm.ErrRecordNotFound)
}

func TestResendVerificationRotatesToken(t *testing.T) {
	f := newFixture(t)
	u := registerStudent(t, f, "radu@example.com")
	oldToken := verificationFor(t, f, u).Token

	require.NoError(t, f.accounts.ResendVerification(u))
	newToken := verificationFor(t, f, u).Token
	assert.NotEqual(t, oldToken, newToken)
	require.Len(t, f.mailer.sent, 2)
	assert.Contains(t, f.mailer.sent[1].Body, newToken)

	require.NoError(t, f.accounts.VerifyEmail(newToken))
	err := f.accounts.ResendVerification(u)
	assert.ErrorIs(t, err, ErrValidation)
}

// ─── Teacher Registration & Invitation Codes ──────────────────────────────────

func TestTeacherRegistrationNeedsInvitation(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)

	_, err := f.accounts.Register(RegisterInput{
		Email: "prof@example.com", Password: testPassword, IsTeacher: true,
	})
	assert.ErrorIs(t, err, ErrValidation)

	inv, err := f.accounts.CreateInvitation(librarian)
	require.NoError(t, err)
	assert.Len(t, inv.Code, 8)

	teacher, err := f.accounts.Register(RegisterInput{
		Email: "prof@example.com", Password: testPassword,
		IsTeacher: true, InvitationCode: inv.Code,
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleTeacher, teacher.Role)

	// The code is single-use.
	_, err = f.accounts.Register(RegisterInput{
		Email: "prof2@example.com", Password: testPassword,
		IsTeacher: true, InvitationCode: inv.Code,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExpiredInvitationRejected(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)

	inv, err := f.accounts.CreateInvitation(librarian)
	require.NoError(t, err)

	f.advance(7 * time.Hour)
	_, err = f.accounts.Register(RegisterInput{
		Email: "prof@example.com", Password: testPassword,
		IsTeacher: true, InvitationCode: inv.Code,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInvitationManagement(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	student, _ := f.seedStudent(t)

	_, err := f.accounts.CreateInvitation(student)
	assert.ErrorIs(t, err, ErrForbidden)

	first, err := f.accounts.CreateInvitation(librarian)
	require.NoError(t, err)
	second, err := f.accounts.CreateInvitation(librarian)
	require.NoError(t, err)

	listed, err := f.accounts.ListInvitations(librarian)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, f.accounts.DeleteInvitation(librarian, second.ID))

	// Expired unused codes are swept; unexpired ones survive.
	f.advance(7 * time.Hour)
	fresh, err := f.accounts.CreateInvitation(librarian)
	require.NoError(t, err)

	removed, err := f.accounts.CleanupExpiredInvitations(librarian)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	_ = first

	listed, err = f.accounts.ListInvitations(librarian)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, fresh.Code, listed[0].Code)
}

func TestCleanupExpiredUnverified(t *testing.T) {
	f := newFixture(t)
	stale := registerStudent(t, f, "vechi@example.com")
	kept := registerStudent(t, f, "nou@example.com")
	f.backdateVerification(t, stale.ID, 7*time.Hour)

	removed, err := f.accounts.CleanupExpiredUnverified()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.ErrorIs(t, f.db.First(&models.User{}, "id = ?", stale.ID).Error, gorm.ErrRecordNotFound)
	assert.NoError(t, f.db.First(&models.User{}, "id = ?", kept.ID).Error)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	student, seeded := f.seedStudent(t)
	librarian := f.seedLibrarian(t)

	profile, err := f.accounts.Profile(student)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, seeded.StudentID, profile.StudentID)

	// No borrower profile is not an error.
	profile, err = f.accounts.Profile(librarian)
	require.NoError(t, err)
	assert.Nil(t, profile)
}
