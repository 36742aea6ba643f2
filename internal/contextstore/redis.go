package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "casegov/internal/platform/redis"
	"casegov/internal/record"
)

// redisTier is the optional shared cache between the in-process tier and the
// backing store. Its keys expire with the same TTL as the in-process entries,
// so the TTL contract holds even when another instance populated the key.
type redisTier struct {
	client *platformredis.Client
}

func newRedisTier(client *platformredis.Client) *redisTier {
	if client == nil {
		return nil
	}
	return &redisTier{client: client}
}

func (t *redisTier) key(entityType record.EntityType, id string) string {
	return "casegov:record:" + string(entityType) + ":" + id
}

// get returns (nil, nil) on a miss; errors are reported so the caller can
// degrade to the backing store rather than fail the read.
func (t *redisTier) get(ctx context.Context, entityType record.EntityType, id string) (record.Record, error) {
	raw, err := t.client.Get(ctx, t.key(entityType, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	rec, err := decodeRecord(entityType, raw)
	if err != nil {
		return nil, fmt.Errorf("decode cached record: %w", err)
	}
	return rec, nil
}

func (t *redisTier) set(ctx context.Context, rec record.Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return t.client.Set(ctx, t.key(rec.EntityType(), rec.RecordID()), raw, ttl).Err()
}

func (t *redisTier) delete(ctx context.Context, entityType record.EntityType, id string) error {
	return t.client.Del(ctx, t.key(entityType, id)).Err()
}

// decodeRecord rehydrates a cached record into its concrete type.
func decodeRecord(entityType record.EntityType, raw []byte) (record.Record, error) {
	switch entityType {
	case record.EntityCase:
		var r record.Case
		return r, json.Unmarshal(raw, &r)
	case record.EntityAccount:
		var r record.Account
		return r, json.Unmarshal(raw, &r)
	case record.EntityContact:
		var r record.Contact
		return r, json.Unmarshal(raw, &r)
	case record.EntityAsset:
		var r record.Asset
		return r, json.Unmarshal(raw, &r)
	case record.EntityTask:
		var r record.Task
		return r, json.Unmarshal(raw, &r)
	case record.EntityWorkOrder:
		var r record.WorkOrder
		return r, json.Unmarshal(raw, &r)
	case record.EntityQuote:
		var r record.Quote
		return r, json.Unmarshal(raw, &r)
	}
	return nil, fmt.Errorf("unknown entity type %q", entityType)
}
