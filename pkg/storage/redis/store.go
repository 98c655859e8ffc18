// Package redis implements storage.Storage on top of Redis.
//
// Each record class lives in one hash (identifier -> encoded record) plus a
// sorted set scored by TimeAdded in microseconds, which gives GetAll* its
// ordering. Both keys are written in a single MULTI/EXEC so the hash and its
// index never disagree. Records sharing a timestamp are listed in first-insert
// order, taken from a per-class INCR counter recorded beside the index.
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	store := redis.New(rdb, redis.WithPrefix("tenant-a"), redis.WithCodec(model.ArchiveCodec{}))
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "authenticator"

// ErrUnavailable wraps transport and server errors returned by Redis.
var ErrUnavailable = errors.New("redis store: unavailable")

const (
	classAccount      = "account"
	classMechanism    = "mechanism"
	classNotification = "notification"
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Stores with different prefixes never see
// each other's records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithCodec sets the record encoding. The default is model.JSONCodec.
func WithCodec(codec model.Codec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// Store is a Redis-backed storage.Storage. It is safe for concurrent use.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	codec  model.Codec
}

var _ storage.Storage = (*Store)(nil)

// New creates a store over an existing client. The client is not closed by the store.
func New(rdb goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: DefaultPrefix,
		codec:  model.JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) hashKey(class string) string {
	return s.prefix + ":" + class
}

func (s *Store) indexKey(class string) string {
	return s.prefix + ":" + class + ":idx"
}

// seqKey holds the insertion sequence of every identifier in the class.
func (s *Store) seqKey(class string) string {
	return s.prefix + ":" + class + ":seq"
}

func (s *Store) counterKey(class string) string {
	return s.prefix + ":" + class + ":ctr"
}

func (s *Store) put(ctx context.Context, class, id string, score float64, data []byte) error {
	seq, err := s.rdb.Incr(ctx, s.counterKey(class)).Result()
	if err != nil {
		return fmt.Errorf("%w: put %s %s: %v", ErrUnavailable, class, id, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(class), id, data)
		pipe.ZAdd(ctx, s.indexKey(class), goredis.Z{Score: score, Member: id})
		// An overwrite keeps the sequence of the first insert.
		pipe.HSetNX(ctx, s.seqKey(class), id, seq)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put %s %s: %v", ErrUnavailable, class, id, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, class, id string) ([]byte, error) {
	data, err := s.rdb.HGet(ctx, s.hashKey(class), id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s %s: %v", ErrUnavailable, class, id, err)
	}
	return data, nil
}

func (s *Store) all(ctx context.Context, class string) ([][]byte, error) {
	index, err := s.rdb.ZRangeWithScores(ctx, s.indexKey(class), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, class, err)
	}
	if len(index) == 0 {
		return nil, nil
	}

	ids := make([]string, len(index))
	for i, z := range index {
		ids[i], _ = z.Member.(string)
	}

	var values, seqs *goredis.SliceCmd
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		values = pipe.HMGet(ctx, s.hashKey(class), ids...)
		seqs = pipe.HMGet(ctx, s.seqKey(class), ids...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, class, err)
	}

	type row struct {
		score float64
		seq   int64
		data  []byte
	}
	rows := make([]row, 0, len(index))
	for i, v := range values.Val() {
		// Index entries whose hash field is gone are skipped.
		str, ok := v.(string)
		if !ok {
			continue
		}
		r := row{score: index[i].Score, data: []byte(str)}
		if raw, ok := seqs.Val()[i].(string); ok {
			r.seq, _ = strconv.ParseInt(raw, 10, 64)
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score < rows[j].score
		}
		return rows[i].seq < rows[j].seq
	})

	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = r.data
	}
	return out, nil
}

func (s *Store) remove(ctx context.Context, class, id string) error {
	var deleted *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.HDel(ctx, s.hashKey(class), id)
		pipe.ZRem(ctx, s.indexKey(class), id)
		pipe.HDel(ctx, s.seqKey(class), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s %s: %v", ErrUnavailable, class, id, err)
	}
	if deleted.Val() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutAccount inserts or replaces an account keyed by its identifier.
func (s *Store) PutAccount(ctx context.Context, account *model.Account) error {
	data, err := s.codec.EncodeAccount(account)
	if err != nil {
		return err
	}
	return s.put(ctx, classAccount, account.Identifier(), float64(account.TimeAdded.UnixMicro()), data)
}

// GetAccount returns the account or storage.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, identifier string) (*model.Account, error) {
	data, err := s.get(ctx, classAccount, identifier)
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeAccount(data)
}

// GetAllAccounts lists accounts ordered by TimeAdded.
func (s *Store) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	blobs, err := s.all(ctx, classAccount)
	if err != nil {
		return nil, err
	}

	accounts := make([]*model.Account, 0, len(blobs))
	for _, b := range blobs {
		a, err := s.codec.DecodeAccount(b)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// RemoveAccount deletes the account or returns storage.ErrNotFound.
func (s *Store) RemoveAccount(ctx context.Context, identifier string) error {
	return s.remove(ctx, classAccount, identifier)
}

// PutMechanism inserts or replaces a mechanism keyed by its UUID.
func (s *Store) PutMechanism(ctx context.Context, mechanism *model.Mechanism) error {
	data, err := s.codec.EncodeMechanism(mechanism)
	if err != nil {
		return err
	}
	return s.put(ctx, classMechanism, mechanism.UUID, float64(mechanism.TimeAdded.UnixMicro()), data)
}

// GetMechanism returns the mechanism or storage.ErrNotFound.
func (s *Store) GetMechanism(ctx context.Context, uuid string) (*model.Mechanism, error) {
	data, err := s.get(ctx, classMechanism, uuid)
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeMechanism(data)
}

// GetAllMechanisms lists mechanisms ordered by TimeAdded.
func (s *Store) GetAllMechanisms(ctx context.Context) ([]*model.Mechanism, error) {
	blobs, err := s.all(ctx, classMechanism)
	if err != nil {
		return nil, err
	}

	mechanisms := make([]*model.Mechanism, 0, len(blobs))
	for _, b := range blobs {
		m, err := s.codec.DecodeMechanism(b)
		if err != nil {
			return nil, err
		}
		mechanisms = append(mechanisms, m)
	}
	return mechanisms, nil
}

// RemoveMechanism deletes the mechanism or returns storage.ErrNotFound.
func (s *Store) RemoveMechanism(ctx context.Context, uuid string) error {
	return s.remove(ctx, classMechanism, uuid)
}

// PutNotification inserts or replaces a notification keyed by its identifier.
func (s *Store) PutNotification(ctx context.Context, notification *model.Notification) error {
	data, err := s.codec.EncodeNotification(notification)
	if err != nil {
		return err
	}
	return s.put(ctx, classNotification, notification.Identifier(), float64(notification.TimeAdded.UnixMicro()), data)
}

// GetNotification returns the notification or storage.ErrNotFound.
func (s *Store) GetNotification(ctx context.Context, identifier string) (*model.Notification, error) {
	data, err := s.get(ctx, classNotification, identifier)
	if err != nil {
		return nil, err
	}
	return s.codec.DecodeNotification(data)
}

// GetAllNotifications lists notifications ordered by TimeAdded.
func (s *Store) GetAllNotifications(ctx context.Context) ([]*model.Notification, error) {
	blobs, err := s.all(ctx, classNotification)
	if err != nil {
		return nil, err
	}

	notifications := make([]*model.Notification, 0, len(blobs))
	for _, b := range blobs {
		n, err := s.codec.DecodeNotification(b)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// RemoveNotification deletes the notification or returns storage.ErrNotFound.
func (s *Store) RemoveNotification(ctx context.Context, identifier string) error {
	return s.remove(ctx, classNotification, identifier)
}
