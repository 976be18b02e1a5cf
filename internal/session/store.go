package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour
)

// Session represents a connection's session state stored in Redis.
type Session struct {
	ID         string `redis:"id"`
	UserID     string `redis:"user_id"`     // empty for anonymous connections
	Nickname   string `redis:"nickname"`    // display name for persona interpolation
	Rooms      string `redis:"rooms"`       // comma-separated joined room ids
	Server     string `redis:"server"`      // which relay server instance
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// JoinedRooms returns the joined room ids as a slice.
func (s *Session) JoinedRooms() []string {
	if s.Rooms == "" {
		return nil
	}
	return strings.Split(s.Rooms, ",")
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this relay server instance
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a new anonymous session in Redis with a 1h TTL.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"id":          sessionID,
		"user_id":     "",
		"nickname":    "",
		"rooms":       "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, nil // not found
	}
	return &session, nil
}

// SetUser binds the connection to an authenticated user and nickname and
// refreshes the TTL.
func (s *Store) SetUser(ctx context.Context, sessionID, userID, nickname string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "user_id", userID, "nickname", nickname, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AddRoom records that the connection joined a room. Rejoining a room the
// session already holds is a no-op.
func (s *Store) AddRoom(ctx context.Context, sessionID, roomID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session: %s not found", sessionID)
	}

	for _, joined := range sess.JoinedRooms() {
		if joined == roomID {
			return s.RefreshTTL(ctx, sessionID)
		}
	}

	rooms := roomID
	if sess.Rooms != "" {
		rooms = sess.Rooms + "," + roomID
	}

	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "rooms", rooms, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RefreshTTL extends the session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Expire(ctx, key, SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
