package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"gopkg.in/yaml.v3"
)

// Seed is the reference data a repository starts with
type Seed struct {
	Securities   []SecuritySeed    `yaml:"securities"`
	Brokers      []BrokerSeed      `yaml:"brokers"`
	Shareholders []ShareholderSeed `yaml:"shareholders"`
}

// SecuritySeed describes one security
type SecuritySeed struct {
	ISIN           string `yaml:"isin"`
	TickSize       int64  `yaml:"tickSize"`
	LotSize        int64  `yaml:"lotSize"`
	LastTradePrice int64  `yaml:"lastTradePrice"`
	State          string `yaml:"state"`
}

// BrokerSeed describes one broker and its starting credit
type BrokerSeed struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Credit int64  `yaml:"credit"`
}

// ShareholderSeed describes one shareholder and its positions by ISIN
type ShareholderSeed struct {
	ID        int64            `yaml:"id"`
	Name      string           `yaml:"name"`
	Positions map[string]int64 `yaml:"positions"`
}

// LoadSeed decodes a YAML seed
func LoadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	return &seed, nil
}

// LoadSeedFile decodes the YAML seed at path
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// Apply creates the seeded entities in repo. Every security gets its own
// default control pipeline.
func (s *Seed) Apply(repo *Repository) error {
	for _, sec := range s.Securities {
		if sec.ISIN == "" {
			return fmt.Errorf("%w: security without ISIN", core.ErrInvalidArgument)
		}
		opts := []core.SecurityOption{
			core.WithTickSize(sec.TickSize),
			core.WithLotSize(sec.LotSize),
			core.WithLastTradePrice(sec.LastTradePrice),
		}
		if sec.State != "" {
			state, err := core.ParseMatchingState(sec.State)
			if err != nil {
				return fmt.Errorf("security %s: %w", sec.ISIN, err)
			}
			opts = append(opts, core.WithMatchingState(state))
		}
		repo.AddSecurity(core.NewSecurity(sec.ISIN, opts...))
	}
	for _, b := range s.Brokers {
		if b.ID <= 0 {
			return fmt.Errorf("%w: broker id %d", core.ErrInvalidArgument, b.ID)
		}
		repo.AddBroker(core.NewBroker(b.ID, b.Name, fpdecimal.FromInt(b.Credit)))
	}
	for _, sh := range s.Shareholders {
		if sh.ID <= 0 {
			return fmt.Errorf("%w: shareholder id %d", core.ErrInvalidArgument, sh.ID)
		}
		holder := core.NewShareholder(sh.ID, sh.Name)
		for isin, qty := range sh.Positions {
			holder.SetPosition(isin, qty)
		}
		repo.AddShareholder(holder)
	}
	return nil
}
