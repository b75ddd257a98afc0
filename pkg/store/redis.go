package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ericogr/xbridge/pkg/config"
	"github.com/go-redis/redis/v8"
)

// hashClient is the part of *redis.Client the store needs.
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisStore keeps settings as one hash so several bridges can share a
// server under different keys.
type RedisStore struct {
	db      hashClient
	key     string
	timeout time.Duration
}

func NewRedis(addr, key string) *RedisStore {
	return &RedisStore{db: redis.NewClient(&redis.Options{Addr: addr}), key: key, timeout: 2 * time.Second}
}

func (r *RedisStore) Load() (config.Settings, error) {
	s := config.DefaultSettings()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	m, err := r.db.HGetAll(ctx, r.key).Result()
	if err != nil {
		return s, fmt.Errorf("%w: hgetall %s: %w", ErrPersistence, r.key, err)
	}
	if len(m) == 0 {
		return s, nil
	}
	if err := fromHash(m, &s); err != nil {
		return config.DefaultSettings(), fmt.Errorf("%w: %s: %w", ErrPersistence, r.key, err)
	}
	return s, nil
}

func (r *RedisStore) Save(s config.Settings) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.db.HSet(ctx, r.key, toHash(s)).Err(); err != nil {
		return fmt.Errorf("%w: hset %s: %w", ErrPersistence, r.key, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.db.Close() }

func toHash(s config.Settings) map[string]interface{} {
	return map[string]interface{}{
		"transmitter_id":   strconv.FormatUint(uint64(s.TransmitterID), 10),
		"battery_max":      strconv.FormatUint(uint64(s.BatteryMax), 10),
		"battery_min":      strconv.FormatUint(uint64(s.BatteryMin), 10),
		"baud":             strconv.FormatUint(uint64(s.Baud), 10),
		"link_initialised": strconv.FormatBool(s.LinkInitialised),
		"sleep_link":       strconv.FormatBool(s.SleepLink),
		"honor_link_state": strconv.FormatBool(s.HonorLinkState),
		"xbridge_hardware": strconv.FormatBool(s.XBridgeHardware),
		"indicators":       strconv.FormatBool(s.Indicators),
		"send_debug":       strconv.FormatBool(s.SendDebug),
	}
}

func fromHash(m map[string]string, s *config.Settings) error {
	uints := []struct {
		key  string
		bits int
		set  func(uint64)
	}{
		{"transmitter_id", 32, func(v uint64) { s.TransmitterID = uint32(v) }},
		{"battery_max", 16, func(v uint64) { s.BatteryMax = uint16(v) }},
		{"battery_min", 16, func(v uint64) { s.BatteryMin = uint16(v) }},
		{"baud", 32, func(v uint64) { s.Baud = uint32(v) }},
	}
	for _, u := range uints {
		raw, ok := m[u.key]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, u.bits)
		if err != nil {
			return fmt.Errorf("field %s: %w", u.key, err)
		}
		u.set(v)
	}
	bools := map[string]*bool{
		"link_initialised": &s.LinkInitialised,
		"sleep_link":       &s.SleepLink,
		"honor_link_state": &s.HonorLinkState,
		"xbridge_hardware": &s.XBridgeHardware,
		"indicators":       &s.Indicators,
		"send_debug":       &s.SendDebug,
	}
	for key, dst := range bools {
		raw, ok := m[key]
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		*dst = v
	}
	return nil
}
