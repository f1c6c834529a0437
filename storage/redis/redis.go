// Package redis persists sessions, messages, results and profiles in Redis
// via rueidis. Records are stored as JSON values; the per-session message
// log is an RPUSH list so appends stay cheap under the one-message-per-turn
// write pattern.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/hupe1980/duetmatch/core"
)

// Compile-time checks against the persistence ports.
var (
	_ core.Store        = (*Store)(nil)
	_ core.ProfileStore = (*Store)(nil)
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// KeyPrefix namespaces all keys (default "duetmatch").
	KeyPrefix string
	// SessionTTL expires session and result records; zero keeps them
	// forever.
	SessionTTL time.Duration
}

// Store implements core.Store and core.ProfileStore on Redis.
type Store struct {
	client     rueidis.Client
	prefix     string
	sessionTTL time.Duration
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "duetmatch"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix, sessionTTL: cfg.SessionTTL}, nil
}

// NewStoreFromClient wraps an existing client, mainly for tests.
func NewStoreFromClient(client rueidis.Client, keyPrefix string, sessionTTL time.Duration) *Store {
	if keyPrefix == "" {
		keyPrefix = "duetmatch"
	}
	return &Store{client: client, prefix: keyPrefix, sessionTTL: sessionTTL}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// CreateSession implements core.Store.
func (s *Store) CreateSession(ctx context.Context, session *core.Session) error {
	// Messages live in their own list; the session record stays small.
	record := *session
	record.Messages = nil
	return s.setJSON(ctx, s.sessionKey(session.ID), record)
}

// AppendMessage implements core.Store.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	cmd := s.client.B().Rpush().Key(s.messagesKey(sessionID)).Element(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateState implements core.Store.
func (s *Store) UpdateState(ctx context.Context, sessionID string, state core.State) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.State = state
	return s.setJSON(ctx, s.sessionKey(sessionID), session)
}

// UpdateEnd implements core.Store.
func (s *Store) UpdateEnd(ctx context.Context, sessionID string, endedAt time.Time, elapsedSeconds int) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.EndedAt = endedAt.UTC()
	session.ElapsedSeconds = elapsedSeconds
	return s.setJSON(ctx, s.sessionKey(sessionID), session)
}

// CreateResult implements core.Store.
func (s *Store) CreateResult(ctx context.Context, result core.CompatibilityResult) error {
	return s.setJSON(ctx, s.resultKey(result.SessionID), result)
}

// GetSession fetches the session record plus its message log.
func (s *Store) GetSession(ctx context.Context, sessionID string) (core.Session, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return core.Session{}, err
	}

	cmd := s.client.B().Lrange().Key(s.messagesKey(sessionID)).Start(0).Stop(-1).Build()
	raw, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil && !rueidis.IsRedisNil(err) {
		return core.Session{}, fmt.Errorf("load messages: %w", err)
	}
	for _, item := range raw {
		var msg core.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return core.Session{}, fmt.Errorf("unmarshal message: %w", err)
		}
		session.Messages = append(session.Messages, msg)
	}
	return session, nil
}

// GetResult fetches the final result for a session.
func (s *Store) GetResult(ctx context.Context, sessionID string) (core.CompatibilityResult, error) {
	var result core.CompatibilityResult
	if err := s.getJSON(ctx, s.resultKey(sessionID), &result); err != nil {
		return core.CompatibilityResult{}, err
	}
	return result, nil
}

// PutProfile stores a participant profile.
func (s *Store) PutProfile(ctx context.Context, profile core.ProfileVector) error {
	return s.setJSON(ctx, s.profileKey(profile.UserID), profile)
}

// GetProfile implements core.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, userID string) (core.ProfileVector, error) {
	cmd := s.client.B().Get().Key(s.profileKey(userID)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return core.ProfileVector{}, core.ErrProfileNotFound
		}
		return core.ProfileVector{}, fmt.Errorf("get profile: %w", err)
	}
	var profile core.ProfileVector
	if err := json.Unmarshal(data, &profile); err != nil {
		return core.ProfileVector{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return profile, nil
}

func (s *Store) getSession(ctx context.Context, sessionID string) (core.Session, error) {
	var session core.Session
	if err := s.getJSON(ctx, s.sessionKey(sessionID), &session); err != nil {
		return core.Session{}, err
	}
	return session, nil
}

func (s *Store) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	var cmd rueidis.Completed
	if s.sessionTTL > 0 {
		cmd = s.client.B().Set().Key(key).Value(string(data)).Ex(s.sessionTTL).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(string(data)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, out any) error {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return fmt.Errorf("%s: not found", key)
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *Store) sessionKey(id string) string  { return s.prefix + ":session:" + id }
func (s *Store) messagesKey(id string) string { return s.prefix + ":messages:" + id }
func (s *Store) resultKey(id string) string   { return s.prefix + ":result:" + id }
func (s *Store) profileKey(id string) string  { return s.prefix + ":profile:" + id }
