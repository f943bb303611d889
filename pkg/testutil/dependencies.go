// Package testutil holds helpers for tests that talk to real Redis, Kafka
// or NATS instances. They skip instead of failing when the service is not
// running, so the default test run needs no infrastructure.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const probeTimeout = 2 * time.Second

// RedisAddr is the Redis address used by integration tests
func RedisAddr() string { return envOr("TINYME_TEST_REDIS_ADDR", "localhost:6379") }

// KafkaAddr is the Kafka broker used by integration tests
func KafkaAddr() string { return envOr("TINYME_TEST_KAFKA_ADDR", "localhost:9092") }

// NATSURL is the NATS server used by integration tests
func NATSURL() string { return envOr("TINYME_TEST_NATS_URL", "nats://localhost:4222") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SkipIfRedisUnavailable skips the test if Redis is unavailable on the specified address
func SkipIfRedisUnavailable(t *testing.T, redisAddr string) {
	t.Helper()
	skipInShortMode(t)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: Redis not available at %s - %v", redisAddr, err)
	}
}

// SkipIfKafkaUnavailable skips the test if no Kafka broker answers a
// metadata request on the specified address
func SkipIfKafkaUnavailable(t *testing.T, kafkaAddr string) {
	t.Helper()
	skipInShortMode(t)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", kafkaAddr)
	if err != nil {
		t.Skipf("Skipping test: Kafka not available at %s - %v", kafkaAddr, err)
		return
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		t.Skipf("Skipping test: Kafka at %s is not responding correctly - %v", kafkaAddr, err)
	}
}

// SkipIfNATSUnavailable skips the test if NATS is unavailable at url
func SkipIfNATSUnavailable(t *testing.T, url string) {
	t.Helper()
	skipInShortMode(t)

	nc, err := nats.Connect(url, nats.Timeout(probeTimeout))
	if err != nil {
		t.Skipf("Skipping test: NATS not available at %s - %v", url, err)
		return
	}
	nc.Close()
}

// SkipIfDependenciesUnavailable skips the test if either Redis or Kafka is unavailable
func SkipIfDependenciesUnavailable(t *testing.T, redisAddr, kafkaAddr string) {
	t.Helper()
	SkipIfRedisUnavailable(t, redisAddr)
	SkipIfKafkaUnavailable(t, kafkaAddr)
}

func skipInShortMode(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
