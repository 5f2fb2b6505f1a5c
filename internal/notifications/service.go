package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/notifications/websocket"
)

// Pusher delivers live messages to connected users
type Pusher interface {
	SendToUser(userID uint, msg websocket.Message) error
}

// Contacts resolves user ids to contact data for external channels
type Contacts interface {
	GetUsers(ctx context.Context, ids []uint) ([]directory.User, error)
}

// Preferences reports which users opted out of a channel for an event type
type Preferences interface {
	OptedOut(ctx context.Context, userIDs []uint, channel, eventType string) (map[uint]bool, error)
}

// Service provides notification business logic
type Service struct {
	db       *gorm.DB
	pusher   Pusher
	contacts Contacts
	prefs    Preferences
	email    Channel
	sms      Channel
	logger   *zap.Logger
}

type Option func(*Service)

func WithPusher(p Pusher) Option { return func(s *Service) { s.pusher = p } }

// WithPreferences lets users mute external channels. In-app rows are always stored.
func WithPreferences(p Preferences) Option { return func(s *Service) { s.prefs = p } }

// WithEmail enables the email channel; contacts resolve addresses.
func WithEmail(c Channel, contacts Contacts) Option {
	return func(s *Service) { s.email = c; s.contacts = contacts }
}

// WithSMS enables the SMS channel for urgent events.
func WithSMS(c Channel, contacts Contacts) Option {
	return func(s *Service) { s.sms = c; s.contacts = contacts }
}

func NewService(db *gorm.DB, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{db: db, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify stores one row per recipient, then pushes it over the live and
// external channels. Only the store failing is an error; delivery failures
// are recorded and logged.
func (s *Service) Notify(ctx context.Context, ev Event) error {
	userIDs := uniqueIDs(ev.UserIDs)
	if len(userIDs) == 0 {
		return nil
	}

	var metadata datatypes.JSON
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		metadata = raw
	}

	rows := make([]Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, Notification{
			UserID:     id,
			Type:       ev.Type,
			Title:      ev.Title,
			Message:    ev.Message,
			EntityKind: ev.EntityKind,
			EntityID:   ev.EntityID,
			Urgent:     ev.Urgent,
			Metadata:   metadata,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}

	for i := range rows {
		s.push(&rows[i])
	}

	var external []Channel
	if s.email != nil && (ev.Email || ev.Urgent) {
		external = append(external, s.email)
	}
	if s.sms != nil && ev.Urgent {
		external = append(external, s.sms)
	}
	if len(external) > 0 {
		s.deliverExternal(ctx, rows, external)
	}
	return nil
}

func (s *Service) push(n *Notification) {
	if s.pusher == nil {
		return
	}
	err := s.pusher.SendToUser(n.UserID, websocket.Message{
		Type: websocket.MessageTypeNotification,
		Data: map[string]any{
			"id":          n.ID,
			"type":        n.Type,
			"title":       n.Title,
			"message":     n.Message,
			"entity_kind": n.EntityKind,
			"entity_id":   n.EntityID,
			"urgent":      n.Urgent,
		},
		Timestamp: n.CreatedAt,
	})
	if err != nil && !errors.Is(err, websocket.ErrNotConnected) {
		s.logger.Warn("Websocket push failed", zap.Uint("user_id", n.UserID), zap.Error(err))
	}
}

func (s *Service) deliverExternal(ctx context.Context, rows []Notification, channels []Channel) {
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	users, err := s.contacts.GetUsers(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to resolve notification recipients", zap.Error(err))
		return
	}
	byID := make(map[uint]Recipient, len(users))
	for _, u := range users {
		byID[u.ID] = Recipient{UserID: u.ID, Name: u.FullName, Email: u.Email, Phone: u.Phone}
	}

	optedOut := make(map[string]map[uint]bool, len(channels))
	if s.prefs != nil {
		for _, ch := range channels {
			out, err := s.prefs.OptedOut(ctx, ids, ch.Name(), rows[0].Type)
			if err != nil {
				s.logger.Warn("Failed to load notification preferences", zap.String("channel", ch.Name()), zap.Error(err))
				continue
			}
			optedOut[ch.Name()] = out
		}
	}

	var deliveries []Delivery
	for i := range rows {
		n := &rows[i]
		to, ok := byID[n.UserID]
		if !ok {
			continue
		}
		for _, ch := range channels {
			d := Delivery{NotificationID: n.ID, Channel: ch.Name(), Status: StatusSent}
			if optedOut[ch.Name()][n.UserID] {
				d.Status = StatusSkipped
				d.Error = "disabled by user"
				deliveries = append(deliveries, d)
				continue
			}
			if err := ch.Send(ctx, to, n); err != nil {
				d.Status = StatusFailed
				if errors.Is(err, errNoAddress) {
					d.Status = StatusSkipped
				} else {
					s.logger.Warn("Notification delivery failed",
						zap.String("channel", ch.Name()),
						zap.Uint("user_id", n.UserID),
						zap.Error(err))
				}
				d.Error = err.Error()
			}
			deliveries = append(deliveries, d)
		}
	}
	if len(deliveries) == 0 {
		return
	}
	if err := s.db.WithContext(ctx).Create(&deliveries).Error; err != nil {
		s.logger.Error("Failed to record deliveries", zap.Error(err))
	}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	var n Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: notification %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&n).Update("read_at", time.Now()).Error
}

// MarkAllRead marks every unread notification of the user and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
