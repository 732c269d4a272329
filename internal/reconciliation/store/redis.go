package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"issuance/internal/reconciliation/models"
	"issuance/pkg/platform/sentinel"
)

const (
	recordPrefix = "recon:rec:"
	indexPrefix  = "recon:idx:"
)

// claimScript sets the marker and indexes it in one step, returning 0 when
// the reference is already claimed.
var claimScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') == false then
  return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// Redis keeps one JSON value per reference under recon:rec:<domain>:<reference>
// and a sorted set per domain under recon:idx:<domain>, scored by processing
// time, for listing.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func recordKey(domain models.Domain, reference string) string {
	return recordPrefix + string(domain) + ":" + reference
}

func indexKey(domain models.Domain) string {
	return indexPrefix + string(domain)
}

// Claim runs SET NX and the index insert as one script so concurrent claims
// from any number of processes resolve to exactly one winner, and a claimed
// marker is always listed.
func (s *Redis) Claim(ctx context.Context, rec *models.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	claimed, err := claimScript.Run(ctx, s.client,
		[]string{recordKey(rec.Domain, rec.Reference), indexKey(rec.Domain)},
		string(payload), rec.ProcessedAt.UnixNano(), rec.Reference,
	).Int()
	if err != nil {
		return fmt.Errorf("claim marker: %w", err)
	}
	if claimed == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, domain models.Domain, reference string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(domain, reference))
		pipe.ZRem(ctx, indexKey(domain), reference)
		return nil
	})
	if err != nil {
		return fmt.Errorf("release marker: %w", err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, domain models.Domain, reference string) (*models.Record, error) {
	raw, err := s.client.Get(ctx, recordKey(domain, reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get marker: %w", err)
	}
	return decode(raw)
}

// SetStatus rewrites the record under WATCH so a concurrent update forces a
// retry instead of a lost write.
func (s *Redis) SetStatus(ctx context.Context, domain models.Domain, reference string, status models.Status, detail string, at time.Time) error {
	k := recordKey(domain, reference)
	update := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decode(raw)
		if err != nil {
			return err
		}
		rec.Status = status
		rec.Detail = detail
		if status != models.StatusProcessed {
			t := at
			rec.ReconciledAt = &t
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, update, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("set marker status: %w", err)
		}
		return err
	}
	return fmt.Errorf("set marker status: too much contention on %s", k)
}

func (s *Redis) List(ctx context.Context, domain models.Domain, filter models.Filter) ([]*models.Record, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.From.IsZero() {
		rangeBy.Min = strconv.FormatInt(filter.From.UnixNano(), 10)
	}
	if !filter.To.IsZero() {
		rangeBy.Max = "(" + strconv.FormatInt(filter.To.UnixNano(), 10)
	}
	refs, err := s.client.ZRangeByScore(ctx, indexKey(domain), rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = recordKey(domain, ref)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}

	var out []*models.Record
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	return out, nil
}

func decode(raw []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode marker: %w", err)
	}
	return &rec, nil
}
