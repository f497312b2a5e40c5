package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// value layout: kind(1) | addedAt unix(8) | srcLen(2) | source
const headerLen = 1 + 8 + 2

type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

type bucketDeleter interface {
	DeleteBucket(name []byte) error
}

// seams for tests
var (
	ensureBucketsFn = ensureBuckets
	deleteBucketsFn = deleteBuckets
	loadRulesFn     = loadRules
	writeMetaFn     = writeMeta
)

// boltStore implements allowlist.Store using bbolt.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (allowlist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// deleteBuckets drops the named buckets, ignoring ones that do not exist.
func deleteBuckets(tx bucketDeleter, names ...[]byte) error {
	for _, name := range names {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("delete bucket %s: %w", name, err)
		}
	}
	return nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// GetFirstMatch checks the exact bucket first, then walks suffix anchors from
// the full name towards the apex and returns the most specific rule.
func (s *boltStore) GetFirstMatch(name string) (domain.AllowRule, bool, error) {
	var (
		rule  domain.AllowRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			if v := b.Get([]byte(name)); v != nil {
				r, err := decodeRule(name, v)
				if err != nil {
					return err
				}
				rule, found = r, true
				return nil
			}
		}
		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		a := name
		for a != "" {
			if v := b.Get([]byte(reverse(a))); v != nil {
				r, err := decodeRule(a, v)
				if err != nil {
					return err
				}
				rule, found = r, true
				return nil
			}
			i := strings.IndexByte(a, '.')
			if i < 0 {
				break
			}
			a = a[i+1:]
		}
		return nil
	})
	if err != nil {
		return domain.AllowRule{}, false, err
	}
	return rule, found, nil
}

// RebuildAll atomically replaces all rules and snapshot metadata.
func (s *boltStore) RebuildAll(rules []domain.AllowRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteBucketsFn(tx, bucketExact, bucketSuffix, bucketMeta); err != nil {
			return err
		}
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}
		if err := loadRulesFn(tx, rules); err != nil {
			return err
		}
		return writeMetaFn(tx, version, updatedUnix)
	})
}

// Purge removes all rules and metadata, leaving empty buckets.
func (s *boltStore) Purge() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteBucketsFn(tx, bucketExact, bucketSuffix, bucketMeta); err != nil {
			return err
		}
		return ensureBucketsFn(tx)
	})
}

func loadRules(tx *bbolt.Tx, rules []domain.AllowRule) error {
	ex := tx.Bucket(bucketExact)
	sx := tx.Bucket(bucketSuffix)
	for _, r := range rules {
		v := encodeRule(r)
		switch r.Kind {
		case domain.AllowRuleExact:
			if err := ex.Put([]byte(r.Name), v); err != nil {
				return err
			}
		case domain.AllowRuleSuffix:
			if err := sx.Put([]byte(reverse(r.Name)), v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported rule kind %s for %q", r.Kind, r.Name)
		}
	}
	return nil
}

func writeMeta(tx *bbolt.Tx, version uint64, updatedUnix int64) error {
	b := tx.Bucket(bucketMeta)
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(keyVersion, vbuf); err != nil {
		return err
	}
	return b.Put(keyUpdated, ubuf)
}

func (s *boltStore) Stats() allowlist.StoreStats {
	st := allowlist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			st.ExactKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			st.SuffixKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

func encodeRule(r domain.AllowRule) []byte {
	src := r.Source
	if len(src) > 0xFFFF {
		src = src[:0xFFFF]
	}
	buf := make([]byte, headerLen+len(src))
	buf[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(buf[1:9], uint64(r.AddedAt.Unix()))
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(src)))
	copy(buf[headerLen:], src)
	return buf
}

func decodeRule(name string, v []byte) (domain.AllowRule, error) {
	if len(v) < headerLen {
		return domain.AllowRule{}, fmt.Errorf("corrupt rule value for %q", name)
	}
	n := int(binary.BigEndian.Uint16(v[9:11]))
	if len(v) < headerLen+n {
		return domain.AllowRule{}, fmt.Errorf("corrupt rule source for %q", name)
	}
	return domain.AllowRule{
		Name:    name,
		Kind:    domain.AllowRuleKind(v[0]),
		AddedAt: time.Unix(int64(binary.BigEndian.Uint64(v[1:9])), 0),
		Source:  string(v[headerLen : headerLen+n]),
	}, nil
}

// reverse must stay aligned with the repository's bloom key reversal.
func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

var _ allowlist.Store = (*boltStore)(nil)
