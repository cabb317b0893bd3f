package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisDocPrefix = "medrec:document:"
	redisIndexKey  = "medrec:documents"
)

// repoRedis stores each document as a JSON string and keeps a sorted set of
// IDs scored by creation time for listing.
type repoRedis struct {
	rdb redis.Cmdable
}

func NewRepoRedis(rdb redis.Cmdable) Repository { return &repoRedis{rdb: rdb} }

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func redisDocKey(id uuid.UUID) string { return redisDocPrefix + id.String() }

func (r *repoRedis) Save(ctx context.Context, d *Document) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisDocKey(d.ID), body, 0)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(d.CreatedAt.UnixMilli()), Member: d.ID.String()})
		return nil
	})
	return err
}

func (r *repoRedis) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	body, err := r.rdb.Get(ctx, redisDocKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(body)
}

func decodeDocument(body []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &d, nil
}

func (r *repoRedis) List(ctx context.Context, limit, offset int) ([]*Document, int, error) {
	total, err := r.rdb.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, 0, err
	}
	items := []*Document{}
	if limit <= 0 || int64(offset) >= total {
		return items, int(total), nil
	}
	ids, err := r.rdb.ZRevRange(ctx, redisIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return items, int(total), nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisDocPrefix + id
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry outlived its document
			continue
		}
		d, err := decodeDocument([]byte(s))
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, int(total), nil
}

func (r *repoRedis) Delete(ctx context.Context, id uuid.UUID) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, redisDocKey(id))
		p.ZRem(ctx, redisIndexKey, id.String())
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
