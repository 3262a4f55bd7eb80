package bandit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the router state under key
// "<keyPrefix>:d<d>", matching spec.md §6's K/V router-state contract.
// It is the cross-process alternative to FilePersister, grounded on
// github.com/redis/go-redis/v9 (also used by the original's
// services/state_redis.py via REDIS_URL).
type RedisPersister struct {
	Client    *redis.Client
	KeyPrefix string
	D         int
	Timeout   time.Duration
}

// NewRedisPersister builds a RedisPersister. keyPrefix defaults to
// "router_state" when empty, matching ROUTER_STATE_KEY's default.
func NewRedisPersister(client *redis.Client, keyPrefix string, d int) *RedisPersister {
	if keyPrefix == "" {
		keyPrefix = "router_state"
	}
	return &RedisPersister{Client: client, KeyPrefix: keyPrefix, D: d, Timeout: 3 * time.Second}
}

func (p *RedisPersister) key() string {
	return fmt.Sprintf("%s:d%d", p.KeyPrefix, p.D)
}

func (p *RedisPersister) Load() (*StatePayload, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	raw, err := p.Client.Get(ctx, p.key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}
	return &payload, nil
}

func (p *RedisPersister) Save(payload *StatePayload) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Client.Set(ctx, p.key(), data, 0).Err()
}
