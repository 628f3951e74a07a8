package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/models"
)

type MessageRepository interface {
	Create(db *gorm.DB, msg *models.Message) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Message, error)
	ListForUser(db *gorm.DB, userID uuid.UUID) ([]models.Message, error)
	ListConversation(db *gorm.DB, userID uuid.UUID, conversationID string) ([]models.Message, error)
	MarkRead(db *gorm.DB, id uuid.UUID) error
}

type NotificationRepository interface {
	Create(db *gorm.DB, n *models.Notification) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Notification, error)
	ListForLibrarians(db *gorm.DB, limit int) ([]models.Notification, error)
	ListForUser(db *gorm.DB, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(db *gorm.DB, id uuid.UUID) error
}

type VerificationRepository interface {
	Create(db *gorm.DB, v *models.EmailVerification) error
	Save(db *gorm.DB, v *models.EmailVerification) error
	GetByToken(db *gorm.DB, token string) (*models.EmailVerification, error)
	GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.EmailVerification, error)
	ListUnverifiedCreatedBefore(db *gorm.DB, cutoff time.Time) ([]models.EmailVerification, error)
	DeleteByUserID(db *gorm.DB, userID uuid.UUID) error
}

type InvitationRepository interface {
	Create(db *gorm.DB, c *models.InvitationCode) error
	Save(db *gorm.DB, c *models.InvitationCode) error
	GetByCode(db *gorm.DB, code string) (*models.InvitationCode, error)
	List(db *gorm.DB) ([]models.InvitationCode, error)
	Delete(db *gorm.DB, id uuid.UUID) error
	DeleteExpiredUnused(db *gorm.DB, now time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(db *gorm.DB, msg *models.Message) error {
	if db == nil {
		db = r.db
	}
	return db.Create(msg).Error
}

func (r *messageRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Message, error) {
	if db == nil {
		db = r.db
	}
	var msg models.Message
	if err := db.First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListForUser(db *gorm.DB, userID uuid.UUID) ([]models.Message, error) {
	if db == nil {
		db = r.db
	}
	var msgs []models.Message
	err := db.
		Preload("Sender").
		Preload("Recipient").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) ListConversation(db *gorm.DB, userID uuid.UUID, conversationID string) ([]models.Message, error) {
	if db == nil {
		db = r.db
	}
	var msgs []models.Message
	err := db.
		Preload("Sender").
		Where("conversation_id = ? AND (sender_id = ? OR recipient_id = ?)", conversationID, userID, userID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) MarkRead(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Message{}).
		Where("id = ?", id).
		Update("is_read", true).
		Error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(db *gorm.DB, n *models.Notification) error {
	if db == nil {
		db = r.db
	}
	return db.Create(n).Error
}

func (r *notificationRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Notification, error) {
	if db == nil {
		db = r.db
	}
	var n models.Notification
	if err := db.First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListForLibrarians(db *gorm.DB, limit int) ([]models.Notification, error) {
	if db == nil {
		db = r.db
	}
	var ns []models.Notification
	err := db.
		Where("for_librarians = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (r *notificationRepository) ListForUser(db *gorm.DB, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if db == nil {
		db = r.db
	}
	var ns []models.Notification
	err := db.
		Where("for_librarians = ? AND user_id = ?", false, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (r *notificationRepository) MarkRead(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).
		Error
}

type verificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(db *gorm.DB) VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Create(db *gorm.DB, v *models.EmailVerification) error {
	if db == nil {
		db = r.db
	}
	return db.Create(v).Error
}

func (r *verificationRepository) Save(db *gorm.DB, v *models.EmailVerification) error {
	if db == nil {
		db = r.db
	}
	return db.Save(v).Error
}

func (r *verificationRepository) GetByToken(db *gorm.DB, token string) (*models.EmailVerification, error) {
	if db == nil {
		db = r.db
	}
	var v models.EmailVerification
	if err := db.Preload("User").First(&v, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *verificationRepository) GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.EmailVerification, error) {
	if db == nil {
		db = r.db
	}
	var v models.EmailVerification
	if err := db.First(&v, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *verificationRepository) ListUnverifiedCreatedBefore(db *gorm.DB, cutoff time.Time) ([]models.EmailVerification, error) {
	if db == nil {
		db = r.db
	}
	var vs []models.EmailVerification
	err := db.
		Where("is_verified = ? AND created_at < ?", false, cutoff).
		Find(&vs).Error
	if err != nil {
		return nil, err
	}
	return vs, nil
}

func (r *verificationRepository) DeleteByUserID(db *gorm.DB, userID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.EmailVerification{}, "user_id = ?", userID).Error
}

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(db *gorm.DB, c *models.InvitationCode) error {
	if db == nil {
		db = r.db
	}
	return db.Create(c).Error
}

func (r *invitationRepository) Save(db *gorm.DB, c *models.InvitationCode) error {
	if db == nil {
		db = r.db
	}
	return db.Save(c).Error
}

func (r *invitationRepository) GetByCode(db *gorm.DB, code string) (*models.InvitationCode, error) {
	if db == nil {
		db = r.db
	}
	var c models.InvitationCode
	if err := forUpdate(db).First(&c, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *invitationRepository) List(db *gorm.DB) ([]models.InvitationCode, error) {
	if db == nil {
		db = r.db
	}
	var cs []models.InvitationCode
	if err := db.Order("created_at DESC").Find(&cs).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *invitationRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.InvitationCode{}, "id = ?", id).Error
}

func (r *invitationRepository) DeleteExpiredUnused(db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.InvitationCode{}, "expires_at < ? AND used_by_id IS NULL", now)
	return res.RowsAffected, res.Error
}
