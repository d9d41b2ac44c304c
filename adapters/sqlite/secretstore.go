package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/svcgate/gateway/domain/secret"
	"github.com/svcgate/gateway/ports"
)

// SecretStore implements ports.SecretStore using SQLite: it stores the
// AES-256-GCM ciphertext+IV pairs written by the (out-of-scope)
// management surface and decrypts them on demand for C11, using a single
// master key held in memory for the process lifetime.
type SecretStore struct {
	db        *DB
	masterKey []byte // 32 bytes
}

// NewSecretStore creates a SQLite secret store decrypting with masterKey.
func NewSecretStore(db *DB, masterKey []byte) (*SecretStore, error) {
	if len(masterKey) != 32 {
		return nil, errors.New("sqlite: secret master key must be 32 bytes")
	}
	return &SecretStore{db: db, masterKey: masterKey}, nil
}

// Resolve decrypts and returns the requested refs for a scope/connector,
// per spec.md §4.11: unknown refs are simply absent from the result, not
// an error — the caller (app/secrets.go) decides whether a missing ref is
// fatal to the request.
func (s *SecretStore) Resolve(ctx context.Context, scopeID, connectorSlug string, refs []string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		row := s.db.QueryRowContext(ctx, `
			SELECT ciphertext, iv FROM secrets
			WHERE scope_id = ? AND connector_slug = ? AND ref = ?
		`, scopeID, connectorSlug, ref)

		var ciphertext, iv []byte
		if err := row.Scan(&ciphertext, &iv); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("sqlite: resolve secret %s: %w", ref, err)
		}

		plaintext, err := secret.Decrypt(s.masterKey, iv, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decrypt secret %s: %w", ref, err)
		}
		out[ref] = plaintext
	}
	return out, nil
}

// Put encrypts and stores a secret value. Used by the (out-of-scope)
// management surface and test fixtures.
func (s *SecretStore) Put(ctx context.Context, scopeID, connectorSlug, ref, plaintext string, at time.Time) error {
	ciphertext, iv, err := secret.Encrypt(s.masterKey, []byte(plaintext))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (scope_id, connector_slug, ref, ciphertext, iv, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope_id, connector_slug, ref) DO UPDATE SET
			ciphertext = excluded.ciphertext, iv = excluded.iv, created_at = excluded.created_at
	`, scopeID, connectorSlug, ref, ciphertext, iv, at.UTC())
	return err
}

var _ ports.SecretStore = (*SecretStore)(nil)
