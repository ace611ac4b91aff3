package repository

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/okian/teamelo/pkg/metrics"
)

const (
	// BackendBolt names the embedded store.
	BackendBolt = "bolt"

	keyRunID   = "run_id"
	keyTakenAt = "taken_at"
	keyDefault = "default"
)

var (
	bucketMeta    = []byte("meta")
	bucketRatings = []byte("ratings")
	bucketApplied = []byte("applied")
)

// BoltStore keeps the latest snapshot in a single bolt file. Ratings are
// stored as big-endian float64 bits keyed by player id.
type BoltStore struct {
	db      *bolt.DB
	mode    os.FileMode
	timeout time.Duration
}

var _ Snapshotter = (*BoltStore)(nil)

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string, opts ...BoltOption) (*BoltStore, error) {
	s := &BoltStore{mode: 0o600, timeout: time.Second}
	for _, opt := range opts {
		opt(s)
	}
	db, err := bolt.Open(path, s.mode, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	s.db = db
	return s, nil
}

func (s *BoltStore) Backend() string { return BackendBolt }

func (s *BoltStore) Close() error {
	return errors.Wrap(s.db.Close(), "unable to close database")
}

// Save replaces the stored snapshot in one transaction.
func (s *BoltStore) Save(ctx context.Context, snap Snapshot) (err error) {
	start := time.Now()
	defer func() { observe(BackendBolt, "save", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketRatings, bucketApplied} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return errors.Wrapf(err, "unable to clear bucket %s", name)
				}
			}
		}
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return errors.Wrap(err, "unable to create meta bucket")
		}
		takenAt, err := snap.TakenAt.UTC().MarshalBinary()
		if err != nil {
			return errors.Wrap(err, "unable to encode timestamp")
		}
		for k, v := range map[string][]byte{
			keyRunID:   []byte(snap.RunID),
			keyTakenAt: takenAt,
			keyDefault: encodeFloat(snap.Default),
		} {
			if err := meta.Put([]byte(k), v); err != nil {
				return errors.Wrapf(err, "unable to write %s", k)
			}
		}

		ratings, err := tx.CreateBucket(bucketRatings)
		if err != nil {
			return errors.Wrap(err, "unable to create ratings bucket")
		}
		for id, r := range snap.Ratings {
			if err := ratings.Put([]byte(id), encodeFloat(r)); err != nil {
				return errors.Wrapf(err, "unable to write rating for %s", id)
			}
		}

		applied, err := tx.CreateBucket(bucketApplied)
		if err != nil {
			return errors.Wrap(err, "unable to create applied bucket")
		}
		for i, id := range snap.Applied {
			if err := applied.Put(encodeUint(uint64(i)), encodeUint(uint64(id))); err != nil {
				return errors.Wrapf(err, "unable to write applied game %d", id)
			}
		}
		return nil
	})
	return errors.Wrap(err, "unable to save snapshot")
}

// Load reads the stored snapshot.
func (s *BoltStore) Load(ctx context.Context) (snap Snapshot, err error) {
	start := time.Now()
	defer func() { observe(BackendBolt, "load", start, err) }()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		ratings := tx.Bucket(bucketRatings)
		if meta == nil || ratings == nil {
			return ErrNotFound
		}

		snap.RunID = string(meta.Get([]byte(keyRunID)))
		if err := snap.TakenAt.UnmarshalBinary(meta.Get([]byte(keyTakenAt))); err != nil {
			return errors.Wrap(ErrInvalidSnapshot, err.Error())
		}
		def, err := decodeFloat(meta.Get([]byte(keyDefault)))
		if err != nil {
			return err
		}
		snap.Default = def

		snap.Ratings = make(map[string]float64, ratings.Stats().KeyN)
		err = ratings.ForEach(func(k, v []byte) error {
			r, err := decodeFloat(v)
			if err != nil {
				return errors.Wrapf(err, "rating for %s", k)
			}
			snap.Ratings[string(k)] = r
			return nil
		})
		if err != nil {
			return err
		}

		// files written before applied ids were kept have no bucket
		applied := tx.Bucket(bucketApplied)
		if applied == nil {
			return nil
		}
		// keys are big-endian sequence numbers, so ForEach yields save order
		return applied.ForEach(func(_, v []byte) error {
			id, err := decodeUint(v)
			if err != nil {
				return errors.Wrap(err, "applied game")
			}
			snap.Applied = append(snap.Applied, int64(id))
			return nil
		})
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "unable to load snapshot")
	}
	return snap, nil
}

func encodeFloat(v float64) []byte {
	return encodeUint(math.Float64bits(v))
}

func decodeFloat(b []byte) (float64, error) {
	u, err := decodeUint(b)
	return math.Float64frombits(u), err
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.Wrapf(ErrInvalidSnapshot, "value of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func observe(backend, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordSnapshot(backend, op, result, time.Since(start).Seconds())
}
