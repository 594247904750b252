package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentracore/sessiond/session"
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisTier is the fast volatile tier. Records carry a TTL bounded by the
// session's refresh expiry, and a per-user SET indexes session ids for the
// list and bulk-delete paths.
type RedisTier struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisTier creates a fast tier on the given Redis client. prefix sets
// the key namespace.
func NewRedisTier(client redis.UniversalClient, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "sd"
	}
	return &RedisTier{redis: client, prefix: prefix}
}

func (r *RedisTier) sessionKey(sessionID string) string {
	return r.prefix + ":sess:" + sessionID
}

func (r *RedisTier) userKey(userID string) string {
	return r.prefix + ":user:" + userID
}

// Get fetches and decodes a session. Records past their refresh expiry are
// reaped on read and reported as ErrNotFound.
func (r *RedisTier) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := r.redis.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	s, err := session.Decode(data)
	if err != nil {
		return nil, err
	}
	if s.RefreshExpired(time.Now()) {
		if _, delErr := r.Delete(ctx, sessionID); delErr != nil {
			return nil, delErr
		}
		return nil, ErrNotFound
	}
	return s, nil
}

// Save stores the session with a TTL running to its refresh expiry and adds
// it to the user index. Sessions already past their refresh window are not
// cached.
func (r *RedisTier) Save(ctx context.Context, s *session.Session) error {
	ttl := time.Until(s.RefreshExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := session.Encode(s)
	if err != nil {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(s.ID), data, ttl)
		pipe.SAdd(ctx, r.userKey(s.UserID), s.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Delete removes the session record and its index entry atomically.
func (r *RedisTier) Delete(ctx context.Context, sessionID string) (bool, error) {
	data, err := r.redis.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	s, err := session.Decode(data)
	if err != nil {
		// Corrupt blob: drop the key anyway.
		if delErr := r.redis.Del(ctx, r.sessionKey(sessionID)).Err(); delErr != nil {
			return false, fmt.Errorf("%w: %v", ErrTierUnavailable, delErr)
		}
		return true, nil
	}

	existed, err := deleteSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.sessionKey(sessionID), r.userKey(s.UserID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return existed == 1, nil
}

// ListByUser resolves the user index and fetches each live session. Stale
// index entries (expired or deleted records) are pruned as they are found.
func (r *RedisTier) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := r.redis.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*session.Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	if len(ids) == 0 {
		return []*session.Session{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	now := time.Now()
	sessions := make([]*session.Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, cmdErr)
		}
		s, decErr := session.Decode(data)
		if decErr != nil {
			stale = append(stale, ids[i])
			continue
		}
		if s.RefreshExpired(now) {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, s)
	}

	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, r.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
		}
	}
	return sessions, nil
}

// DeleteByUser removes every indexed session for the user except excludeID
// and returns how many live records were deleted.
func (r *RedisTier) DeleteByUser(ctx context.Context, userID, excludeID string) (int, error) {
	userKey := r.userKey(userID)
	ids, err := r.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	targets := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != excludeID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	pipe := r.redis.Pipeline()
	delCmds := make([]*redis.IntCmd, len(targets))
	for i, id := range targets {
		delCmds[i] = pipe.Del(ctx, r.sessionKey(id))
	}
	removed := make([]interface{}, len(targets))
	for i, id := range targets {
		removed[i] = id
	}
	pipe.SRem(ctx, userKey, removed...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}

	count := 0
	for _, cmd := range delCmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			return count, fmt.Errorf("%w: %v", ErrTierUnavailable, cmdErr)
		}
		count += int(n)
	}
	return count, nil
}

// PurgeExpired scans the session keyspace and deletes records past their
// refresh expiry. Redis TTLs reap most of these on their own; the scan
// mainly clears index leftovers and records written with clock drift.
// O(n) over the namespace, intended for the periodic cleanup sweep only.
func (r *RedisTier) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	pattern := r.prefix + ":sess:*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
		}
		for _, key := range keys {
			data, getErr := r.redis.Get(ctx, key).Bytes()
			if getErr != nil {
				if errors.Is(getErr, redis.Nil) {
					continue
				}
				return total, fmt.Errorf("%w: %v", ErrTierUnavailable, getErr)
			}
			s, decErr := session.Decode(data)
			if decErr != nil || s.RefreshExpired(now) {
				sessionID := key[len(r.prefix)+len(":sess:"):]
				existed, delErr := r.Delete(ctx, sessionID)
				if delErr != nil {
					return total, delErr
				}
				if existed {
					total++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Ping reports point-in-time Redis availability.
func (r *RedisTier) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	return nil
}
