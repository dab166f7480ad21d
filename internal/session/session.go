package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/learnio/learnio/internal/cache"
	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/models"
)

// Status is the lifecycle state of a portal session
type Status string

const (
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

var ErrSessionNotFound = errors.New("session not found")

const changesChannel = "changes"

// Profile is the part of the identity the portal renders
type Profile struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

// Session is the per-browser state shared by every gated view
type Session struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Profile      Profile   `json:"profile"`
	AccessToken  string    `json:"access_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`
	Error        bool      `json:"error"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RedirectPath string    `json:"redirect_path,omitempty"`
	OAuthState   string    `json:"oauth_state,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Authenticated reports whether the session holds a usable token
func (s *Session) Authenticated() bool {
	if s == nil || s.Status != StatusAuthenticated {
		return false
	}
	return s.TokenExpiry.IsZero() || time.Now().Before(s.TokenExpiry)
}

// Email is the normalized session email, empty when signed out
func (s *Session) Email() string {
	if s == nil || s.Status != StatusAuthenticated {
		return ""
	}
	return models.NormalizeEmail(s.Profile.Email)
}

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelError   NotificationLevel = "error"
)

// Notification is a toast waiting to be shown to the session owner
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// Change is broadcast whenever a session signs in or out
type Change struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Email     string `json:"email"`
}

// Store keeps sessions in redis. It is the single writer of session state.
type Store struct {
	cache  *cache.CacheHelper
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(helper *cache.CacheHelper, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		cache:  helper,
		ttl:    ttl,
		logger: logger,
	}
}

// New creates an anonymous session
func (st *Store) New(ctx context.Context) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Status:    StatusAnonymous,
		UpdatedAt: time.Now(),
	}
	if err := st.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	var s Session
	if err := st.cache.Get(ctx, id, &s); err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &s, nil
}

func (st *Store) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	if err := st.cache.Set(ctx, s.ID, s, st.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Touch extends the session lifetime
func (st *Store) Touch(ctx context.Context, id string) error {
	if err := st.cache.Expire(ctx, id, st.ttl); err != nil {
		return err
	}
	return st.cache.Expire(ctx, notificationsKey(id), st.ttl)
}

// update applies fn to the stored session atomically; fn may run more than once
func (st *Store) update(ctx context.Context, id string, fn func(s *Session)) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	var updated *Session
	err := st.cache.Update(ctx, id, st.ttl, func(data []byte) (interface{}, error) {
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		fn(&s)
		s.UpdatedAt = time.Now()
		updated = &s
		return &s, nil
	})
	if err != nil {
		if errors.Is(err, cache.ErrCacheNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return updated, nil
}

// BeginSignIn moves the session to loading while the provider round trip is pending
func (st *Store) BeginSignIn(ctx context.Context, id, redirectPath, state string) (*Session, error) {
	return st.update(ctx, id, func(s *Session) {
		s.Status = StatusLoading
		s.OAuthState = state
		s.Error = false
		s.ErrorMessage = ""
		if redirectPath != "" {
			s.RedirectPath = redirectPath
		}
	})
}

// RememberRedirect stores where to go after sign-in without changing the status
func (st *Store) RememberRedirect(ctx context.Context, id, path string) error {
	_, err := st.update(ctx, id, func(s *Session) {
		s.RedirectPath = path
	})
	return err
}

// Set marks the session authenticated with the given token
func (st *Store) Set(ctx context.Context, id string, token *identity.Token) (*Session, error) {
	s, err := st.update(ctx, id, func(s *Session) {
		s.Status = StatusAuthenticated
		s.Profile = Profile{
			DisplayName: token.Identity.DisplayName,
			Email:       models.NormalizeEmail(token.Identity.Email),
			PhotoURL:    token.Identity.PhotoURL,
		}
		s.AccessToken = token.AccessToken
		s.TokenExpiry = token.Expiry
		s.OAuthState = ""
		s.Error = false
		s.ErrorMessage = ""
	})
	if err != nil {
		return nil, err
	}

	st.broadcast(ctx, Change{SessionID: s.ID, Status: s.Status, Email: s.Profile.Email})
	return s, nil
}

// UpdateProfile replaces the rendered profile fields of a signed-in session
func (st *Store) UpdateProfile(ctx context.Context, id, displayName, photoURL string) (*Session, error) {
	return st.update(ctx, id, func(s *Session) {
		s.Profile.DisplayName = displayName
		s.Profile.PhotoURL = photoURL
	})
}

// Fail ends a sign-in attempt with an error; the session becomes anonymous
func (st *Store) Fail(ctx context.Context, id, message string) (*Session, error) {
	s, err := st.update(ctx, id, func(s *Session) {
		s.Status = StatusAnonymous
		s.OAuthState = ""
		s.Error = true
		s.ErrorMessage = message
	})
	if err != nil {
		return nil, err
	}

	if err := st.Notify(ctx, id, LevelError, message); err != nil {
		st.logger.WarnContext(ctx, "Failed to queue notification", "session_id", id, "error", err)
	}
	return s, nil
}

// Clear signs the session out. The session id survives so pending notifications still reach the browser.
func (st *Store) Clear(ctx context.Context, id string) (*Session, error) {
	var email string
	s, err := st.update(ctx, id, func(s *Session) {
		email = s.Email()
		*s = Session{ID: s.ID, Status: StatusAnonymous}
	})
	if err != nil {
		return nil, err
	}

	st.broadcast(ctx, Change{SessionID: s.ID, Status: s.Status, Email: email})
	return s, nil
}

func notificationsKey(id string) string {
	return id + ":notifications"
}

// Notify queues a notification for the session owner
func (st *Store) Notify(ctx context.Context, id string, level NotificationLevel, message string) error {
	n := Notification{Level: level, Message: message, At: time.Now()}
	if err := st.cache.Push(ctx, notificationsKey(id), n, st.ttl); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// DrainNotifications returns and removes every pending notification in the order queued
func (st *Store) DrainNotifications(ctx context.Context, id string) ([]Notification, error) {
	raw, err := st.cache.Drain(ctx, notificationsKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to drain notifications: %w", err)
	}

	out := make([]Notification, 0, len(raw))
	for _, item := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			st.logger.WarnContext(ctx, "Dropping malformed notification", "session_id", id, "error", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (st *Store) broadcast(ctx context.Context, change Change) {
	if err := st.cache.Publish(ctx, changesChannel, change); err != nil {
		st.logger.WarnContext(ctx, "Failed to broadcast session change",
			"session_id", change.SessionID,
			"status", change.Status,
			"error", err)
	}
}

// Subscribe streams sign-in and sign-out changes from every portal instance until ctx is done
func (st *Store) Subscribe(ctx context.Context) (<-chan Change, error) {
	pubsub, err := st.cache.Subscribe(ctx, changesChannel)
	if err != nil {
		return nil, err
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session changes: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					st.logger.Warn("Dropping malformed session change", "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
