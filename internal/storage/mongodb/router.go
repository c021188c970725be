package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mobile_auth/internal/config"
	sl "mobile_auth/internal/lib/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const connectTimeout = 10 * time.Second

// Router owns two independently tuned connections to the same replica set.
//
// The read pool prefers secondaries with majority read concern and a large
// pool; the write pool targets the primary with majority, journaled write
// concern. Any operation that must observe its own prior write goes through
// WriteDB — secondaries may lag.
type Router struct {
	cfg *config.MongoDB
	log *slog.Logger

	fallback *mongo.Client

	readOnce     sync.Once
	readClient   *mongo.Client
	readDegraded bool

	writeOnce     sync.Once
	writeClient   *mongo.Client
	writeDegraded bool
}

// New bootstraps the shared default connection with a bounded retry loop.
// The read and write pools are built lazily on first use; the default
// connection doubles as their degraded-mode fallback.
func New(ctx context.Context, cfg *config.MongoDB, log *slog.Logger) (*Router, error) {
	const op = "storage.mongodb.New"

	var (
		client *mongo.Client
		err    error
	)

	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		client, err = connect(ctx, options.Client().
			ApplyURI(cfg.URI).
			SetConnectTimeout(connectTimeout))
		if err == nil {
			break
		}

		log.Warn("mongodb bootstrap connect failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.ConnectAttempts),
			sl.Err(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(cfg.ConnectRetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Router{
		cfg:      cfg,
		log:      log,
		fallback: client,
	}, nil
}

// ReadDB returns the secondary-preferred handle. Staleness-tolerant
// lookups only.
func (r *Router) ReadDB() *mongo.Database {
	r.readOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		client, err := connect(ctx, options.Client().
			ApplyURI(r.cfg.URI).
			SetReadPreference(readpref.SecondaryPreferred()).
			SetReadConcern(readconcern.Majority()).
			SetMaxPoolSize(r.cfg.ReadPoolSize).
			SetMaxConnIdleTime(30*time.Second).
			SetConnectTimeout(connectTimeout))
		if err != nil {
			r.log.Warn("read pool construction failed, falling back to primary-routed default connection", sl.Err(err))
			r.readClient = r.fallback
			r.readDegraded = true
			return
		}

		r.readClient = client
	})

	return r.readClient.Database(r.cfg.Database)
}

// WriteDB returns the primary-only handle with majority, journaled write
// concern. Required for any read-your-own-write sequence.
func (r *Router) WriteDB() *mongo.Database {
	r.writeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		journal := true
		wc := writeconcern.Majority()
		wc.Journal = &journal

		client, err := connect(ctx, options.Client().
			ApplyURI(r.cfg.URI).
			SetReadPreference(readpref.Primary()).
			SetWriteConcern(wc).
			SetMaxPoolSize(r.cfg.WritePoolSize).
			SetMaxConnIdleTime(30*time.Second).
			SetConnectTimeout(connectTimeout))
		if err != nil {
			r.log.Warn("write pool construction failed, falling back to default connection", sl.Err(err))
			r.writeClient = r.fallback
			r.writeDegraded = true
			return
		}

		r.writeClient = client
	})

	return r.writeClient.Database(r.cfg.Database)
}

type PoolStats struct {
	Database           string `json:"database"`
	ReadPoolSize       uint64 `json:"read_pool_size"`
	WritePoolSize      uint64 `json:"write_pool_size"`
	ReadDegraded       bool   `json:"read_degraded"`
	WriteDegraded      bool   `json:"write_degraded"`
	ReadSessionsInUse  int    `json:"read_sessions_in_use"`
	WriteSessionsInUse int    `json:"write_sessions_in_use"`
	ReadReady          bool   `json:"read_ready"`
	WriteReady         bool   `json:"write_ready"`
}

// Stats reports pool state for operational introspection.
func (r *Router) Stats(ctx context.Context) PoolStats {
	stats := PoolStats{
		Database:      r.cfg.Database,
		ReadPoolSize:  r.cfg.ReadPoolSize,
		WritePoolSize: r.cfg.WritePoolSize,
	}

	if r.readClient != nil {
		stats.ReadDegraded = r.readDegraded
		stats.ReadSessionsInUse = r.readClient.NumberSessionsInProgress()
		stats.ReadReady = r.readClient.Ping(ctx, nil) == nil
	}
	if r.writeClient != nil {
		stats.WriteDegraded = r.writeDegraded
		stats.WriteSessionsInUse = r.writeClient.NumberSessionsInProgress()
		stats.WriteReady = r.writeClient.Ping(ctx, readpref.Primary()) == nil
	}

	return stats
}

// Close disconnects all clients, skipping fallback aliases so the shared
// connection is not closed twice.
func (r *Router) Close(ctx context.Context) error {
	var errs []error

	if r.readClient != nil && r.readClient != r.fallback {
		if err := r.readClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("read pool: %w", err))
		}
	}
	if r.writeClient != nil && r.writeClient != r.fallback {
		if err := r.writeClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("write pool: %w", err))
		}
	}
	if err := r.fallback.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("default connection: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("closing mongodb connections: %v", errs)
	}

	return nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return client, nil
}
