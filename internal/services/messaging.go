package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
)

const notificationFeedLimit = 50

// MessagingService handles direct messages between borrowers and librarians
// and the notification feeds.
type MessagingService struct {
	users         repositories.UserRepository
	borrowings    repositories.BorrowingRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
}

func NewMessagingService(
	users repositories.UserRepository,
	borrowings repositories.BorrowingRepository,
	messages repositories.MessageRepository,
	notifications repositories.NotificationRepository,
) *MessagingService {
	return &MessagingService{
		users:         users,
		borrowings:    borrowings,
		messages:      messages,
		notifications: notifications,
	}
}

// UserView is the directory entry exposed for messaging.
type UserView struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	IsLibrarian bool      `json:"is_librarian"`
}

// MessageView is a single message as seen by one participant.
type MessageView struct {
	ID         uuid.UUID `json:"id"`
	Sender     UserView  `json:"sender"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	IsSentByMe bool      `json:"is_sent_by_me"`
}

// ConversationSummary is one row of the inbox: the latest message of a
// conversation plus its unread count.
type ConversationSummary struct {
	ConversationID string      `json:"conversation_id"`
	OtherUser      UserView    `json:"other_user"`
	LastMessage    MessageView `json:"last_message"`
	UnreadCount    int         `json:"unread_count"`
}

// SendMessage delivers a message to another user, optionally pinned to a
// borrowing record.
func (s *MessagingService) SendMessage(actor *models.User, recipientID uuid.UUID, borrowingID *uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if recipientID == actor.ID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	if _, err := s.users.GetByID(nil, recipientID); err != nil {
		return nil, notFoundOr(err, "recipient")
	}
	if borrowingID != nil {
		if _, err := s.borrowings.GetByID(nil, *borrowingID); err != nil {
			return nil, notFoundOr(err, "borrowing")
		}
	}

	msg := &models.Message{
		SenderID:    actor.ID,
		RecipientID: recipientID,
		BorrowingID: borrowingID,
		Content:     content,
	}
	if err := s.messages.Create(nil, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversations returns the caller's inbox, newest conversation first.
func (s *MessagingService) Conversations(actor *models.User) ([]ConversationSummary, error) {
	msgs, err := s.messages.ListForUser(nil, actor.ID)
	if err != nil {
		return nil, err
	}

	// Messages arrive in ascending timestamp order, so the running values
	// per conversation end up describing the latest message.
	latest := make(map[string]*ConversationSummary)
	order := make([]string, 0)
	for i := range msgs {
		m := &msgs[i]
		sum, ok := latest[m.ConversationID]
		if !ok {
			sum = &ConversationSummary{ConversationID: m.ConversationID}
			latest[m.ConversationID] = sum
			order = append(order, m.ConversationID)
		}
		other := m.Sender
		if m.SenderID == actor.ID {
			other = m.Recipient
		}
		sum.OtherUser = userView(&other)
		sum.LastMessage = messageView(m, actor.ID)
		if m.RecipientID == actor.ID && !m.IsRead {
			sum.UnreadCount++
		}
	}

	out := make([]ConversationSummary, 0, len(latest))
	for _, id := range order {
		out = append(out, *latest[id])
	}
	// Newest conversation first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Conversation returns all messages of one conversation the caller is part of.
func (s *MessagingService) Conversation(actor *models.User, conversationID string) ([]MessageView, error) {
	msgs, err := s.messages.ListConversation(nil, actor.ID, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageView(&msgs[i], actor.ID))
	}
	return out, nil
}

// MarkMessageRead marks a message as read; only the recipient may do so.
func (s *MessagingService) MarkMessageRead(actor *models.User, id uuid.UUID) error {
	msg, err := s.messages.GetByID(nil, id)
	if err != nil {
		return notFoundOr(err, "message")
	}
	if msg.RecipientID != actor.ID {
		return fmt.Errorf("%w: message", ErrNotFound)
	}
	return s.messages.MarkRead(nil, id)
}

// ListUsers returns the messaging directory: librarians see everyone,
// everyone else sees only librarians.
func (s *MessagingService) ListUsers(actor *models.User) ([]UserView, error) {
	var (
		users []models.User
		err   error
	)
	if actor.IsLibrarian() {
		users, err = s.users.ListOthers(nil, actor.ID)
	} else {
		users, err = s.users.ListByRole(nil, models.UserRoleLibrarian)
	}
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, userView(&users[i]))
	}
	return out, nil
}

// SearchUsers searches the directory by name, username or email. Librarian only.
func (s *MessagingService) SearchUsers(actor *models.User, query string) ([]UserView, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []UserView{}, nil
	}
	users, err := s.users.Search(nil, query, actor.ID)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for i := range users {
		v := userView(&users[i])
		v.Email = users[i].Email
		out = append(out, v)
	}
	return out, nil
}

// Notifications returns the caller's feed: the shared librarian pool for
// librarians, personal notifications for everyone else.
func (s *MessagingService) Notifications(actor *models.User) ([]models.Notification, error) {
	if actor.IsLibrarian() {
		return s.notifications.ListForLibrarians(nil, notificationFeedLimit)
	}
	return s.notifications.ListForUser(nil, actor.ID, notificationFeedLimit)
}

// MarkNotificationRead marks a notification as read, restricted to the
// feed the caller can see.
func (s *MessagingService) MarkNotificationRead(actor *models.User, id uuid.UUID) error {
	n, err := s.notifications.GetByID(nil, id)
	if err != nil {
		return notFoundOr(err, "notification")
	}
	if actor.IsLibrarian() {
		if !n.ForLibrarians {
			return fmt.Errorf("%w: notification", ErrNotFound)
		}
	} else if n.ForLibrarians || n.UserID == nil || *n.UserID != actor.ID {
		return fmt.Errorf("%w: notification", ErrNotFound)
	}
	return s.notifications.MarkRead(nil, id)
}

func userView(u *models.User) UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		IsLibrarian: u.IsLibrarian(),
	}
}

func messageView(m *models.Message, viewerID uuid.UUID) MessageView {
	return MessageView{
		ID:         m.ID,
		Sender:     userView(&m.Sender),
		Content:    m.Content,
		Timestamp:  m.CreatedAt,
		IsRead:     m.IsRead,
		IsSentByMe: m.SenderID == viewerID,
	}
}
