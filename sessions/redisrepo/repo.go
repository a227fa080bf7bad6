package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"

	"github.com/redis/rueidis"
)

var _ sessions.Repo = (*Repo)(nil)

type Config struct {
	// Addr is the Redis server address, e.g. "localhost:6379"
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
	// TTL is refreshed on every write; idle sessions disappear after it
	TTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		KeyPrefix:   "bank-dashboard:session:",
		DialTimeout: 5 * time.Second,
		TTL:         30 * 24 * time.Hour,
	}
}

// Repo stores sealed session records in Redis
type Repo struct {
	client rueidis.Client
	sealer *Sealer
	config Config
}

func New(config Config, sealer *Sealer) (*Repo, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redisrepo: no address configured")
	}
	if sealer == nil {
		return nil, fmt.Errorf("redisrepo: a sealer is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{config.Addr},
		Username:    config.Username,
		Password:    config.Password,
		SelectDB:    config.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redisrepo: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisrepo: failed to ping server: %w", err)
	}

	return &Repo{client: client, sealer: sealer, config: config}, nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(sessionID)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	sealed, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	data, err := r.sealer.Open(sessionID, sealed)
	if err != nil {
		return nil, fmt.Errorf("redis get: %w: %v", apperrors.ErrInvalidSession, err)
	}

	var session sessions.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("redis get: failed to unmarshal: %w", err)
	}
	return &session, nil
}

func (r *Repo) Upsert(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis set: failed to marshal: %w", err)
	}
	sealed, err := r.sealer.Seal(session.ID, data)
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	cmd := r.client.B().Set().Key(r.key(session.ID)).Value(rueidis.BinaryString(sealed)).Ex(r.config.TTL).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(sessionID)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (r *Repo) Close() error {
	r.client.Close()
	return nil
}

func (r *Repo) key(sessionID string) string {
	return r.config.KeyPrefix + sessionID
}
