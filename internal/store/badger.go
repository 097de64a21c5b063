package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dgraph-io/badger/v3"
)

type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore persists sessions in an embedded badger database.
//
// Key layout per identity (escaped):
//
//	fix/<id>/next/out
//	fix/<id>/next/in
//	fix/<id>/msg/<dir>/<seq:012d>
type BadgerStore struct {
	db     *badger.DB
	claims *localClaims
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts.Logger = nil
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db, claims: newLocalClaims()}, nil
}

func badgerPrefix(id string) string {
	return "fix/" + url.PathEscape(id) + "/"
}

func badgerCounterKey(id, which string) []byte {
	return []byte(badgerPrefix(id) + "next/" + which)
}

func badgerMsgPrefix(id string, dir Direction) []byte {
	return []byte(badgerPrefix(id) + "msg/" + dir.String() + "/")
}

func badgerMsgKey(id string, dir Direction, seq int) []byte {
	return append(badgerMsgPrefix(id, dir), []byte(fmt.Sprintf("%012d", seq))...)
}

func (s *BadgerStore) readCounter(id, which string) (int, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	seq := 1
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerCounterKey(id, which))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		seq, err = strconv.Atoi(string(raw))
		return err
	})
	return seq, err
}

func (s *BadgerStore) writeCounter(id, which string, seq int) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateSeq(seq); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerCounterKey(id, which), []byte(strconv.Itoa(seq)))
	})
}

func (s *BadgerStore) NextOutgoing(ctx context.Context, id string) (int, error) {
	return s.readCounter(id, "out")
}

func (s *BadgerStore) NextIncoming(ctx context.Context, id string) (int, error) {
	return s.readCounter(id, "in")
}

func (s *BadgerStore) SetNextOutgoing(ctx context.Context, id string, seq int) error {
	return s.writeCounter(id, "out", seq)
}

func (s *BadgerStore) SetNextIncoming(ctx context.Context, id string, seq int) error {
	return s.writeCounter(id, "in", seq)
}

func (s *BadgerStore) StoreMessage(ctx context.Context, id string, rec Record) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerMsgKey(id, rec.Direction, rec.SeqNum), val)
	})
}

func (s *BadgerStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	out := make([]Record, 0, end-start+1)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerMsgPrefix(id, dir)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(badgerMsgKey(id, dir, start)); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			if rec.SeqNum > end {
				break
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkContiguous(id, out, start, end); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	prefix := []byte(badgerPrefix(id))
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Claim(ctx context.Context, id string) (func(), error) {
	return s.claims.Claim(ctx, id)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
