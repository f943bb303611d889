package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options represents configuration options for Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// DefaultOptions points at a local Redis
func DefaultOptions() Options {
	return Options{Addr: "localhost:6379"}
}

// NewClient creates a Redis client from opts
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Store persists reference data (securities, broker credit, shareholder
// positions) so a restarted engine resumes with the balances the previous
// run ended with. Order books are not stored.
type Store struct {
	client          *redis.Client
	prefix          string
	securitiesKey   string
	brokersKey      string
	shareholdersKey string
	logger          *zap.Logger
}

// NewStore creates a store keeping its keys under prefix
func NewStore(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:          client,
		prefix:          prefix,
		securitiesKey:   fmt.Sprintf("%s:securities", prefix),
		brokersKey:      fmt.Sprintf("%s:brokers", prefix),
		shareholdersKey: fmt.Sprintf("%s:shareholders", prefix),
		logger:          logger,
	}
}

func (s *Store) securityKey(isin string) string {
	return fmt.Sprintf("%s:security:%s", s.prefix, isin)
}

func (s *Store) brokerKey(id int64) string {
	return fmt.Sprintf("%s:broker:%d", s.prefix, id)
}

func (s *Store) shareholderKey(id int64) string {
	return fmt.Sprintf("%s:shareholder:%d", s.prefix, id)
}

func (s *Store) positionsKey(id int64) string {
	return fmt.Sprintf("%s:shareholder:%d:positions", s.prefix, id)
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save writes a snapshot of repo in one transaction
func (s *Store) Save(ctx context.Context, repo *memory.Repository) error {
	securities := repo.Securities()
	brokers := repo.Brokers()
	shareholders := repo.Shareholders()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sec := range securities {
			pipe.SAdd(ctx, s.securitiesKey, sec.ISIN())
			pipe.HSet(ctx, s.securityKey(sec.ISIN()),
				"tickSize", sec.TickSize(),
				"lotSize", sec.LotSize(),
				"lastTradePrice", sec.LastTradePrice(),
				"state", sec.State().String(),
			)
		}
		for _, b := range brokers {
			pipe.SAdd(ctx, s.brokersKey, b.ID())
			pipe.HSet(ctx, s.brokerKey(b.ID()), "name", b.Name(), "credit", b.Credit().String())
		}
		for _, sh := range shareholders {
			pipe.SAdd(ctx, s.shareholdersKey, sh.ID())
			pipe.HSet(ctx, s.shareholderKey(sh.ID()), "name", sh.Name())
			pipe.Del(ctx, s.positionsKey(sh.ID()))
			if positions := sh.Positions(); len(positions) > 0 {
				values := make(map[string]any, len(positions))
				for isin, qty := range positions {
					values[isin] = qty
				}
				pipe.HSet(ctx, s.positionsKey(sh.ID()), values)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to save snapshot", zap.Error(err))
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Info("snapshot saved",
		zap.Int("securities", len(securities)),
		zap.Int("brokers", len(brokers)),
		zap.Int("shareholders", len(shareholders)))
	return nil
}

// Load adds every stored entity to repo and returns how many it loaded
func (s *Store) Load(ctx context.Context, repo *memory.Repository) (int, error) {
	var loaded int

	isins, err := s.client.SMembers(ctx, s.securitiesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("listing securities: %w", err)
	}
	for _, isin := range isins {
		security, err := s.loadSecurity(ctx, isin)
		if err != nil {
			return loaded, err
		}
		repo.AddSecurity(security)
		loaded++
	}

	brokerIDs, err := s.ids(ctx, s.brokersKey)
	if err != nil {
		return loaded, err
	}
	for _, id := range brokerIDs {
		fields, err := s.client.HGetAll(ctx, s.brokerKey(id)).Result()
		if err != nil {
			return loaded, fmt.Errorf("loading broker %d: %w", id, err)
		}
		credit, err := fpdecimal.FromString(fields["credit"])
		if err != nil {
			return loaded, fmt.Errorf("broker %d credit %q: %w", id, fields["credit"], err)
		}
		repo.AddBroker(core.NewBroker(id, fields["name"], credit))
		loaded++
	}

	holderIDs, err := s.ids(ctx, s.shareholdersKey)
	if err != nil {
		return loaded, err
	}
	for _, id := range holderIDs {
		name, err := s.client.HGet(ctx, s.shareholderKey(id), "name").Result()
		if err != nil && err != redis.Nil {
			return loaded, fmt.Errorf("loading shareholder %d: %w", id, err)
		}
		positions, err := s.client.HGetAll(ctx, s.positionsKey(id)).Result()
		if err != nil {
			return loaded, fmt.Errorf("loading positions of %d: %w", id, err)
		}
		holder := core.NewShareholder(id, name)
		for isin, raw := range positions {
			qty, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return loaded, fmt.Errorf("shareholder %d position %s: %w", id, isin, err)
			}
			holder.SetPosition(isin, qty)
		}
		repo.AddShareholder(holder)
		loaded++
	}

	s.logger.Info("snapshot loaded", zap.Int("entities", loaded))
	return loaded, nil
}

func (s *Store) loadSecurity(ctx context.Context, isin string) (*core.Security, error) {
	fields, err := s.client.HGetAll(ctx, s.securityKey(isin)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading security %s: %w", isin, err)
	}
	var opts []core.SecurityOption
	for _, f := range []struct {
		name string
		opt  func(int64) core.SecurityOption
	}{
		{"tickSize", core.WithTickSize},
		{"lotSize", core.WithLotSize},
		{"lastTradePrice", core.WithLastTradePrice},
	} {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("security %s %s %q: %w", isin, f.name, raw, err)
		}
		opts = append(opts, f.opt(v))
	}
	if raw, ok := fields["state"]; ok {
		state, err := core.ParseMatchingState(raw)
		if err != nil {
			return nil, fmt.Errorf("security %s: %w", isin, err)
		}
		opts = append(opts, core.WithMatchingState(state))
	}
	return core.NewSecurity(isin, opts...), nil
}

func (s *Store) ids(ctx context.Context, key string) ([]int64, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", key, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.logger.Warn("skipping malformed id", zap.String("key", key), zap.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
