package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
)

const defaultPoolSize = 32

// ProducerPool hands out sarama producers. Producers are created on demand
// and at most size idle ones are kept.
type ProducerPool struct {
	cfg  Config
	idle chan sarama.SyncProducer

	mu     sync.Mutex
	closed bool
}

// NewProducerPool creates an empty pool
func NewProducerPool(cfg Config) *ProducerPool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{defaultBrokerList}
	}
	return &ProducerPool{
		cfg:  cfg,
		idle: make(chan sarama.SyncProducer, cfg.PoolSize),
	}
}

// Get returns an idle producer or dials a new one
func (p *ProducerPool) Get() (sarama.SyncProducer, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("producer pool is closed")
	}

	select {
	case producer := <-p.idle:
		return producer, nil
	default:
	}
	producer, err := newSyncProducer(p.cfg.Brokers, p.cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// Put returns a producer to the pool, closing it when the pool is full
func (p *ProducerPool) Put(producer sarama.SyncProducer) {
	if producer == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = producer.Close()
		return
	}
	select {
	case p.idle <- producer:
	default:
		_ = producer.Close()
	}
}

// Idle returns the number of pooled producers
func (p *ProducerPool) Idle() int {
	return len(p.idle)
}

// Close closes every idle producer; producers handed out later are closed
// when they are put back
func (p *ProducerPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for {
		select {
		case producer := <-p.idle:
			errs = append(errs, producer.Close())
		default:
			return errors.Join(errs...)
		}
	}
}
