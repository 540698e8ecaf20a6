package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"strings"

	"arborescence/internal/model"
)

// newRandomID returns prefix-<suffix> where suffix is 8 chars of base32 (lowercase, no padding).
// 8 chars base32 ~= 40 bits (~1 trillion) of space.
func newRandomID(prefix string) (string, error) {
	var b [5]byte // 40 bits -> 8 base32 chars
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	suffix := strings.ToLower(enc.EncodeToString(b[:]))
	return prefix + "-" + suffix, nil
}

func (s *Store) newNodeID(ctx context.Context, q querier, level model.Level) (string, error) {
	for i := 0; i < 16; i++ {
		id, err := newRandomID(level.IDPrefix())
		if err != nil {
			return "", err
		}
		var one int
		err = q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM nodes WHERE id = ?`), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("unable to allocate a unique node id")
}
