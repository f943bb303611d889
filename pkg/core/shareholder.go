package core

// Shareholder holds positions per security, keyed by ISIN
type Shareholder struct {
	id        int64
	name      string
	positions map[string]int64
}

// NewShareholder creates a shareholder without positions
func NewShareholder(id int64, name string) *Shareholder {
	return &Shareholder{id: id, name: name, positions: make(map[string]int64)}
}

// ID returns the shareholder id
func (s *Shareholder) ID() int64 {
	return s.id
}

// Name returns the shareholder name
func (s *Shareholder) Name() string {
	return s.name
}

// Position returns the number of shares held of isin
func (s *Shareholder) Position(isin string) int64 {
	return s.positions[isin]
}

// Positions returns a copy of every position
func (s *Shareholder) Positions() map[string]int64 {
	out := make(map[string]int64, len(s.positions))
	for isin, qty := range s.positions {
		out[isin] = qty
	}
	return out
}

// SetPosition overwrites the position held of isin
func (s *Shareholder) SetPosition(isin string, quantity int64) {
	s.positions[isin] = quantity
}

// HasEnoughPositionsOn reports whether the shareholder can cover quantity
// shares of security
func (s *Shareholder) HasEnoughPositionsOn(security *Security, quantity int64) bool {
	return s.positions[security.ISIN()] >= quantity
}

// IncPosition adds quantity shares of security
func (s *Shareholder) IncPosition(security *Security, quantity int64) {
	s.positions[security.ISIN()] += quantity
}

// DecPosition removes quantity shares of security
func (s *Shareholder) DecPosition(security *Security, quantity int64) {
	s.positions[security.ISIN()] -= quantity
}
