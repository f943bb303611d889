package core

// SecurityRepository looks up securities by ISIN
type SecurityRepository interface {
	// FindSecurity returns nil when the ISIN is unknown
	FindSecurity(isin string) *Security
}

// BrokerRepository looks up brokers by id
type BrokerRepository interface {
	// FindBroker returns nil when the id is unknown
	FindBroker(id int64) *Broker
}

// ShareholderRepository looks up shareholders by id
type ShareholderRepository interface {
	// FindShareholder returns nil when the id is unknown
	FindShareholder(id int64) *Shareholder
}

// Repository defines the interface for the reference data the engine
// resolves requests against
type Repository interface {
	SecurityRepository
	BrokerRepository
	ShareholderRepository
}
