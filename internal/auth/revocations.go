package auth

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var revokedBucketName = []byte("revoked_sessions")

// BoltRevocations keeps the ids of logged out sessions until they would
// have expired anyway.
type BoltRevocations struct {
	db *bolt.DB
}

// OpenBoltRevocations opens (or creates) the session database at path.
func OpenBoltRevocations(path string) (*BoltRevocations, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	r, err := NewBoltRevocations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func NewBoltRevocations(db *bolt.DB) (*BoltRevocations, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(revokedBucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create revocation bucket: %w", err)
	}
	return &BoltRevocations{db: db}, nil
}

func (r *BoltRevocations) Close() error {
	return r.db.Close()
}

// Revoke records id as revoked. Revoking twice is a no-op.
func (r *BoltRevocations) Revoke(id string, expiresAt time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(revokedBucketName)
		if bucket.Get([]byte(id)) != nil {
			return nil
		}
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, uint64(expiresAt.Unix()))
		return bucket.Put([]byte(id), v)
	})
}

func (r *BoltRevocations) IsRevoked(id string) (revoked bool, err error) {
	err = r.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(revokedBucketName).Get([]byte(id)) != nil
		return nil
	})
	return
}

// Prune drops entries whose session expired before now.
func (r *BoltRevocations) Prune(now time.Time) (removed int, err error) {
	err = r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(revokedBucketName)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if len(v) != 8 || int64(binary.BigEndian.Uint64(v)) < now.Unix() {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return
}
