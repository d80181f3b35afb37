package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/garrison-hq/garrison/internal/rbac"
)

// Store persists the authenticated identity across client restarts.
type Store interface {
	Save(ctx context.Context, identity *Identity) error
	Load(ctx context.Context) (*Identity, error)
	Clear(ctx context.Context) error
}

// CredentialStore keeps the identity in two redundant channels so either
// can recover the session. The primary channel is the durable keyed store;
// the fallback is the cookie channel.
type CredentialStore struct {
	primary  Channel
	fallback Channel
	logger   *slog.Logger
}

// NewCredentialStore composes the two channels.
func NewCredentialStore(primary, fallback Channel, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{primary: primary, fallback: fallback, logger: logger}
}

// Save serializes the identity to both channels. Channel failures are
// logged and swallowed; persistence is best-effort by contract.
func (s *CredentialStore) Save(ctx context.Context, identity *Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	if err := s.primary.Save(ctx, data); err != nil {
		s.logger.Warn("credential save to primary channel", slog.Any("error", err))
	}
	if err := s.fallback.Save(ctx, data); err != nil {
		s.logger.Warn("credential save to fallback channel", slog.Any("error", err))
	}
	return nil
}

// Load reads the primary channel first and falls back to the cookie
// channel. A hit in only one channel backfills the other so both stay
// reconciled. Absent or undecodable data yields (nil, nil), never an
// error.
func (s *CredentialStore) Load(ctx context.Context) (*Identity, error) {
	if identity := s.loadChannel(ctx, s.primary, "primary"); identity != nil {
		s.backfill(ctx, s.fallback, "fallback", identity)
		return identity, nil
	}
	if identity := s.loadChannel(ctx, s.fallback, "fallback"); identity != nil {
		s.backfill(ctx, s.primary, "primary", identity)
		return identity, nil
	}
	return nil, nil
}

// Clear erases both channels unconditionally. Idempotent.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.primary.Clear(ctx); err != nil {
		s.logger.Warn("credential clear primary channel", slog.Any("error", err))
	}
	if err := s.fallback.Clear(ctx); err != nil {
		s.logger.Warn("credential clear fallback channel", slog.Any("error", err))
	}
	return nil
}

func (s *CredentialStore) loadChannel(ctx context.Context, ch Channel, name string) *Identity {
	data, err := ch.Load(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoCredential):
		case errors.Is(err, ErrCorruptCredential):
			s.logger.Warn("corrupt credential treated as absent", slog.String("channel", name), slog.Any("error", err))
		default:
			s.logger.Warn("credential load", slog.String("channel", name), slog.Any("error", err))
		}
		return nil
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		s.logger.Warn("corrupt credential treated as absent", slog.String("channel", name), slog.Any("error", err))
		return nil
	}
	if identity.ID == "" || !rbac.IsValid(identity.Role) {
		s.logger.Warn("incomplete credential treated as absent", slog.String("channel", name))
		return nil
	}
	return &identity
}

func (s *CredentialStore) backfill(ctx context.Context, ch Channel, name string, identity *Identity) {
	data, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := ch.Save(ctx, data); err != nil {
		s.logger.Warn("credential backfill", slog.String("channel", name), slog.Any("error", err))
	}
}

var _ Store = (*CredentialStore)(nil)
