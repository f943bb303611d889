package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erain9/tinyme/pkg/core"
)

// Repository keeps securities, brokers and shareholders in memory. It
// implements core.Repository.
type Repository struct {
	sync.RWMutex
	securities   map[string]*core.Security
	brokers      map[int64]*core.Broker
	shareholders map[int64]*core.Shareholder
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{
		securities:   make(map[string]*core.Security),
		brokers:      make(map[int64]*core.Broker),
		shareholders: make(map[int64]*core.Shareholder),
	}
}

// AddSecurity registers a security, replacing one with the same ISIN
func (r *Repository) AddSecurity(security *core.Security) {
	r.Lock()
	defer r.Unlock()
	r.securities[security.ISIN()] = security
}

// AddBroker registers a broker, replacing one with the same id
func (r *Repository) AddBroker(broker *core.Broker) {
	r.Lock()
	defer r.Unlock()
	r.brokers[broker.ID()] = broker
}

// AddShareholder registers a shareholder, replacing one with the same id
func (r *Repository) AddShareholder(shareholder *core.Shareholder) {
	r.Lock()
	defer r.Unlock()
	r.shareholders[shareholder.ID()] = shareholder
}

// FindSecurity returns the security with isin or nil
func (r *Repository) FindSecurity(isin string) *core.Security {
	r.RLock()
	defer r.RUnlock()
	return r.securities[isin]
}

// FindBroker returns the broker with id or nil
func (r *Repository) FindBroker(id int64) *core.Broker {
	r.RLock()
	defer r.RUnlock()
	return r.brokers[id]
}

// FindShareholder returns the shareholder with id or nil
func (r *Repository) FindShareholder(id int64) *core.Shareholder {
	r.RLock()
	defer r.RUnlock()
	return r.shareholders[id]
}

// Securities returns every security ordered by ISIN
func (r *Repository) Securities() []*core.Security {
	r.RLock()
	defer r.RUnlock()
	out := make([]*core.Security, 0, len(r.securities))
	for _, s := range r.securities {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISIN() < out[j].ISIN() })
	return out
}

// Brokers returns every broker ordered by id
func (r *Repository) Brokers() []*core.Broker {
	r.RLock()
	defer r.RUnlock()
	out := make([]*core.Broker, 0, len(r.brokers))
	for _, b := range r.brokers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Shareholders returns every shareholder ordered by id
func (r *Repository) Shareholders() []*core.Shareholder {
	r.RLock()
	defer r.RUnlock()
	out := make([]*core.Shareholder, 0, len(r.shareholders))
	for _, s := range r.shareholders {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// String implements fmt.Stringer interface
func (r *Repository) String() string {
	r.RLock()
	defer r.RUnlock()
	return fmt.Sprintf("memory repository: %d securities, %d brokers, %d shareholders",
		len(r.securities), len(r.brokers), len(r.shareholders))
}

var _ core.Repository = (*Repository)(nil)
