package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

var bucketUsers = []byte("users") // bucket name inside bbolt

// Document is the single persisted record per user. It is merged-written on
// every relevant change and read once at session start.
//
// Format is final: fields are only added, never renamed or removed, so that
// existing user documents always stay readable.
type Document struct {
	Accounts        []types.Account         `json:"accounts"`
	Pillars         []types.ContentPillar   `json:"pillars"`
	Queued          []types.QueuedPost      `json:"queued"`
	Scheduled       []types.ScheduledPost   `json:"scheduled"`
	Pattern         slots.Pattern           `json:"pattern"`
	VoiceSamples    []types.VoiceSample     `json:"voice_samples"`
	GenerationCount int                     `json:"generation_count"`
	Threads         *types.ThreadsConnection `json:"threads,omitempty"`
}

// DB is the bbolt-backed document store keyed by user identifier.
//
// bbolt is used because it is pure Go (no CGO, no external process), ACID —
// a document write is always atomic even across a crash — and a single file
// in the data directory.
type DB struct {
	db *bbolt.DB
}

// OpenDB opens (or creates) the document store at path.
func OpenDB(path string) (*DB, error) {
	opts := &bbolt.Options{Timeout: 0} // non-blocking open
	db, err := bbolt.Open(path, 0o640, opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketUsers)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init bucket: %w", err)
	}

	return &DB{db: db}, nil
}

// Load reads the document for userID. found is false when the user has no
// stored state yet; the caller initializes defaults in that case.
func (d *DB) Load(userID string) (doc Document, found bool, err error) {
	err = d.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketUsers).Get([]byte(userID))
		if val == nil {
			return nil
		}
		found = true
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return Document{}, false, fmt.Errorf("store: load %s: %w", userID, err)
	}
	return doc, found, nil
}

// Save upserts the full document for userID.
func (d *DB) Save(userID string, doc Document) error {
	val, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document for %s: %w", userID, err)
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).Put([]byte(userID), val)
	})
}

// UserIDs returns every user with stored state, in key order. The dispatch
// job walks this list on each pass.
func (d *DB) UserIDs() ([]string, error) {
	var ids []string
	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return ids, nil
}

// Close closes the underlying bbolt database.
func (d *DB) Close() error {
	return d.db.Close()
}
