package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	logs "github.com/danmuck/fixgate/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix   = "fixgate"
	defaultRedisLeaseTTL = 15 * time.Second
	redisFetchChunk      = 512
)

var (
	redisRefreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisStore keeps counters as strings and records in one hash per
// identity and direction, field = seq. Claims are leases shared by every
// process using the same redis and prefix.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	leaseTTL time.Duration

	mu     sync.Mutex
	leases map[string]chan struct{}
}

func NewRedisStore(client *redis.Client, prefix string, leaseTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if leaseTTL <= 0 {
		leaseTTL = defaultRedisLeaseTTL
	}
	return &RedisStore{client: client, prefix: prefix, leaseTTL: leaseTTL, leases: make(map[string]chan struct{})}
}

// OpenRedis connects with opts and verifies the server answers PING.
func OpenRedis(ctx context.Context, opts *redis.Options, prefix string, leaseTTL time.Duration) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, prefix, leaseTTL), nil
}

func (s *RedisStore) key(id string, parts ...string) string {
	k := s.prefix + ":" + id
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) readCounter(ctx context.Context, id, which string) (int, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	seq, err := s.client.Get(ctx, s.key(id, "next_"+which)).Int()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	return seq, err
}

func (s *RedisStore) writeCounter(ctx context.Context, id, which string, seq int) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateSeq(seq); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id, "next_"+which), seq, 0).Err()
}

func (s *RedisStore) NextOutgoing(ctx context.Context, id string) (int, error) {
	return s.readCounter(ctx, id, "out")
}

func (s *RedisStore) NextIncoming(ctx context.Context, id string) (int, error) {
	return s.readCounter(ctx, id, "in")
}

func (s *RedisStore) SetNextOutgoing(ctx context.Context, id string, seq int) error {
	return s.writeCounter(ctx, id, "out", seq)
}

func (s *RedisStore) SetNextIncoming(ctx context.Context, id string, seq int) error {
	return s.writeCounter(ctx, id, "in", seq)
}

func (s *RedisStore) StoreMessage(ctx context.Context, id string, rec Record) error {
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
	return s.client.HSet(ctx, s.key(id, "msgs", rec.Direction.String()), strconv.Itoa(rec.SeqNum), val).Err()
}

func (s *RedisStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	key := s.key(id, "msgs", dir.String())
	out := make([]Record, 0, end-start+1)
	for lo := start; lo <= end; lo += redisFetchChunk {
		hi := min(lo+redisFetchChunk-1, end)
		fields := make([]string, 0, hi-lo+1)
		for seq := lo; seq <= hi; seq++ {
			fields = append(fields, strconv.Itoa(seq))
		}
		vals, err := s.client.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: id=%q missing seq=%d", ErrCorruption, id, lo+i)
			}
			var rec Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("%w: id=%q seq=%d: %v", ErrCorruption, id, lo+i, err)
			}
			out = append(out, rec)
		}
	}
	if err := checkContiguous(id, out, start, end); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.client.Del(ctx,
		s.key(id, "next_out"),
		s.key(id, "next_in"),
		s.key(id, "msgs", Outbound.String()),
		s.key(id, "msgs", Inbound.String()),
	).Err()
}

// Claim takes a SET NX lease on the identity and refreshes it until release.
// When a refresh finds the lease gone or owned by another token, Lost(id)
// is closed and refreshing stops.
func (s *RedisStore) Claim(ctx context.Context, id string) (func(), error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	key := s.key(id, "owner")
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, token, s.leaseTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrIdentityClaimed, id)
	}

	lost := make(chan struct{})
	s.mu.Lock()
	s.leases[id] = lost
	s.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !s.refresh(id, key, token) {
					close(lost)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			s.mu.Lock()
			if s.leases[id] == lost {
				delete(s.leases, id)
			}
			s.mu.Unlock()
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := redisReleaseScript.Run(rctx, s.client, []string{key}, token).Err(); err != nil {
				logs.Warnf("store.RedisStore.Claim release id=%q err=%v", id, err)
			}
		})
	}, nil
}

// refresh extends the lease. It reports false only when redis answered
// that token no longer owns key; transport errors are retried next tick.
func (s *RedisStore) refresh(id, key, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.leaseTTL/3)
	defer cancel()
	n, err := redisRefreshScript.Run(ctx, s.client, []string{key}, token, s.leaseTTL.Milliseconds()).Int()
	if err != nil {
		logs.Warnf("store.RedisStore.refresh id=%q err=%v", id, err)
		return true
	}
	if n == 0 {
		logs.Errf("store.RedisStore.refresh id=%q lease lost", id)
		return false
	}
	return true
}

// Lost implements LeaseWatcher.
func (s *RedisStore) Lost(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases[id]
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
