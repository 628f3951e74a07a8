package repositories

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/immatt-0/lenbrary/internal/models"
)

// ErrStockConflict is returned by the guarded stock update when the change
// would push stock outside [0, inventory].
var ErrStockConflict = errors.New("stock adjustment rejected")

// forUpdate adds a row lock on dialects that support it. SQLite (the test
// database) has no FOR UPDATE; its single writer serializes these
// transactions anyway.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	GetByUsername(db *gorm.DB, username string) (*models.User, error)
	ListByRole(db *gorm.DB, role models.UserRole) ([]models.User, error)
	ListOthers(db *gorm.DB, excludeID uuid.UUID) ([]models.User, error)
	Search(db *gorm.DB, query string, excludeID uuid.UUID) ([]models.User, error)
	Delete(db *gorm.DB, id uuid.UUID) error
}

type StudentRepository interface {
	Create(db *gorm.DB, student *models.Student) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Student, error)
	GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.Student, error)
	DeleteByUserID(db *gorm.DB, userID uuid.UUID) error
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	Save(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uuid.UUID) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	List(db *gorm.DB) ([]models.Book, error)
	Search(db *gorm.DB, query string) ([]models.Book, error)
	AdjustStock(db *gorm.DB, id uuid.UUID, delta int) error
	SetCounts(db *gorm.DB, id uuid.UUID, stock, inventory int) error
}

type BorrowingRepository interface {
	Create(db *gorm.DB, b *models.Borrowing) error
	Save(db *gorm.DB, b *models.Borrowing) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error)
	FindActive(db *gorm.DB, studentID, bookID uuid.UUID) (*models.Borrowing, error)
	ListByStudent(db *gorm.DB, studentID uuid.UUID) ([]models.Borrowing, error)
	ListByStatus(db *gorm.DB, statuses ...models.BorrowingStatus) ([]models.Borrowing, error)
	ListAll(db *gorm.DB) ([]models.Borrowing, error)
	ListDueBefore(db *gorm.DB, status models.BorrowingStatus, t time.Time) ([]models.Borrowing, error)
	ListDueBetween(db *gorm.DB, status models.BorrowingStatus, from, to time.Time) ([]models.Borrowing, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "LOWER(email) = ?", strings.ToLower(email)).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(db *gorm.DB, username string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "LOWER(username) = ?", strings.ToLower(username)).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListByRole(db *gorm.DB, role models.UserRole) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	var users []models.User
	if err := db.Where("role = ?", role).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) ListOthers(db *gorm.DB, excludeID uuid.UUID) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	var users []models.User
	if err := db.Where("id <> ?", excludeID).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Search(db *gorm.DB, query string, excludeID uuid.UUID) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	like := "%" + strings.ToLower(query) + "%"
	var users []models.User
	err := db.
		Where("id <> ?", excludeID).
		Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.User{}, "id = ?", id).Error
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(db *gorm.DB, student *models.Student) error {
	if db == nil {
		db = r.db
	}
	return db.Create(student).Error
}

func (r *studentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	if err := db.Preload("User").First(&student, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	if err := db.Preload("User").First(&student, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) DeleteByUserID(db *gorm.DB, userID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Student{}, "user_id = ?", userID).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) Save(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Save(book).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "id = ?", id).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := forUpdate(db).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("name").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Search(db *gorm.DB, query string) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	like := "%" + strings.ToLower(query) + "%"
	var books []models.Book
	err := db.
		Where("LOWER(name) LIKE ? OR LOWER(author) LIKE ?", like, like).
		Order("name").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// AdjustStock applies a relative stock change as a single conditional UPDATE
// so the 0 <= stock <= inventory invariant holds even under concurrent
// transitions. Zero affected rows means the change was rejected.
func (r *bookRepository) AdjustStock(db *gorm.DB, id uuid.UUID, delta int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND stock + ? >= 0 AND stock + ? <= inventory", id, delta, delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockConflict
	}
	return nil
}

func (r *bookRepository) SetCounts(db *gorm.DB, id uuid.UUID, stock, inventory int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"stock": stock, "inventory": inventory})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type borrowingRepository struct {
	db *gorm.DB
}

func NewBorrowingRepository(db *gorm.DB) BorrowingRepository {
	return &borrowingRepository{db: db}
}

func (r *borrowingRepository) Create(db *gorm.DB, b *models.Borrowing) error {
	if db == nil {
		db = r.db
	}
	return db.Create(b).Error
}

func (r *borrowingRepository) Save(db *gorm.DB, b *models.Borrowing) error {
	if db == nil {
		db = r.db
	}
	return db.Save(b).Error
}

func (r *borrowingRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var b models.Borrowing
	err := db.
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *borrowingRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var b models.Borrowing
	err := forUpdate(db).
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *borrowingRepository) FindActive(db *gorm.DB, studentID, bookID uuid.UUID) (*models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var b models.Borrowing
	err := db.
		Where("student_id = ? AND book_id = ? AND status IN ?", studentID, bookID, models.ActiveStatuses).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *borrowingRepository) ListByStudent(db *gorm.DB, studentID uuid.UUID) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var bs []models.Borrowing
	err := db.
		Preload("Book").
		Where("student_id = ?", studentID).
		Order("request_date DESC").
		Find(&bs).Error
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (r *borrowingRepository) ListByStatus(db *gorm.DB, statuses ...models.BorrowingStatus) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var bs []models.Borrowing
	err := db.
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		Where("status IN ?", statuses).
		Order("request_date DESC").
		Find(&bs).Error
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (r *borrowingRepository) ListAll(db *gorm.DB) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var bs []models.Borrowing
	err := db.
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		Order("request_date DESC").
		Find(&bs).Error
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (r *borrowingRepository) ListDueBefore(db *gorm.DB, status models.BorrowingStatus, t time.Time) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var bs []models.Borrowing
	err := db.
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", status, t).
		Find(&bs).Error
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (r *borrowingRepository) ListDueBetween(db *gorm.DB, status models.BorrowingStatus, from, to time.Time) ([]models.Borrowing, error) {
	if db == nil {
		db = r.db
	}
	var bs []models.Borrowing
	err := db.
		Preload("Book").
		Preload("Student").
		Preload("Student.User").
		Where("status = ? AND due_date IS NOT NULL AND due_date >= ? AND due_date < ?", status, from, to).
		Find(&bs).Error
	if err != nil {
		return nil, err
	}
	return bs, nil
}
