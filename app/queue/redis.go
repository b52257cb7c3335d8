package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	envelopeField = "envelope"

	defaultPrefix       = "product-comb"
	defaultGroup        = "workers"
	defaultBlockTimeout = 2 * time.Second
	defaultReclaimEvery = time.Second
	defaultReclaimBatch = 50
)

type RedisConfig struct {
	Prefix       string
	Group        string
	Consumer     string
	Block        time.Duration
	ReclaimEvery time.Duration
	ReclaimBatch int64
}

// RedisBroker stores each queue in a Redis stream read through one consumer
// group. Pending entries whose idle time exceeds their lease are claimed by
// the next consumer that asks for work; the stream's delivery counter is the
// attempt number.
type RedisBroker struct {
	client *redis.Client
	cfg    RedisConfig

	mu          sync.Mutex
	groups      map[Name]bool
	lastReclaim map[Name]time.Time
	reclaimed   map[Name][]reclaimedEntry
	minLease    map[Name]time.Duration
}

// reclaimedEntry is a pending entry this consumer claimed but has not handed
// out yet.
type reclaimedEntry struct {
	delivery  *Delivery
	claimedAt time.Time
	lease     time.Duration
}

func NewRedisBroker(client *redis.Client, cfg RedisConfig) *RedisBroker {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Group == "" {
		cfg.Group = defaultGroup
	}
	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}
	if cfg.Block <= 0 {
		cfg.Block = defaultBlockTimeout
	}
	if cfg.ReclaimEvery <= 0 {
		cfg.ReclaimEvery = defaultReclaimEvery
	}
	if cfg.ReclaimBatch <= 0 {
		cfg.ReclaimBatch = defaultReclaimBatch
	}

	return &RedisBroker{
		client:      client,
		cfg:         cfg,
		groups:      make(map[Name]bool),
		lastReclaim: make(map[Name]time.Time),
		reclaimed:   make(map[Name][]reclaimedEntry),
		minLease:    make(map[Name]time.Duration),
	}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis at %s: %v", ErrUnavailable, addr, err)
	}
	return client, nil
}

func (b *RedisBroker) StreamName(name Name) string {
	return b.cfg.Prefix + ":queue:" + string(name)
}

func (b *RedisBroker) resultKey(id string) string {
	return b.cfg.Prefix + ":result:" + id
}

func (b *RedisBroker) ensureGroup(ctx context.Context, name Name) error {
	b.mu.Lock()
	done := b.groups[name]
	b.mu.Unlock()
	if done {
		return nil
	}

	err := b.client.XGroupCreateMkStream(ctx, b.StreamName(name), b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: failed to create consumer group for %s: %v", ErrUnavailable, name, err)
	}

	b.mu.Lock()
	b.groups[name] = true
	b.mu.Unlock()
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, env *Envelope) error {
	if err := b.ensureGroup(ctx, env.Queue); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	b.observeLease(env.Queue, env.Lease())

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.StreamName(env.Queue),
		Values: map[string]any{envelopeField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to publish to %s: %v", ErrUnavailable, env.Queue, err)
	}
	return nil
}

func (b *RedisBroker) Receive(ctx context.Context, name Name) (*Delivery, error) {
	if err := b.ensureGroup(ctx, name); err != nil {
		return nil, err
	}
	stream := b.StreamName(name)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, err := b.nextReclaimed(ctx, name)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: failed to read from %s: %v", ErrUnavailable, stream, err)
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				env, err := decodeMessage(msg)
				if err != nil {
					slog.Error("Dropping malformed message", "queue", name, "message_id", msg.ID, "error", err)
					b.drop(ctx, stream, msg.ID)
					continue
				}
				return &Delivery{Envelope: *env, Attempt: 1, Receipt: msg.ID}, nil
			}
		}
	}
}

// observeLease records the shortest lease seen on a queue. Pending entries
// idle for less than that cannot have expired.
func (b *RedisBroker) observeLease(name Name, lease time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.minLease[name]; !ok || lease < cur {
		b.minLease[name] = lease
	}
}

// nextReclaimed hands out a claimed entry, scanning the pending list when
// none is buffered.
func (b *RedisBroker) nextReclaimed(ctx context.Context, name Name) (*Delivery, error) {
	if d := b.popReclaimed(ctx, name); d != nil {
		return d, nil
	}
	if err := b.reclaim(ctx, name); err != nil {
		return nil, err
	}
	return b.popReclaimed(ctx, name), nil
}

func (b *RedisBroker) popReclaimed(ctx context.Context, name Name) *Delivery {
	var stale []reclaimedEntry
	var next *Delivery

	b.mu.Lock()
	buf := b.reclaimed[name]
	for len(buf) > 0 && next == nil {
		e := buf[0]
		buf = buf[1:]
		// Half the lease is gone; leave it for whoever claims it next.
		if time.Since(e.claimedAt) > e.lease/2 {
			stale = append(stale, e)
			continue
		}
		next = e.delivery
	}
	b.reclaimed[name] = buf
	b.mu.Unlock()

	for _, e := range stale {
		if err := b.setDeliveryCount(ctx, e.delivery, e.delivery.Attempt-1); err != nil {
			slog.Warn("Failed to release reclaimed entry", "queue", name, "job_id", e.delivery.ID, "error", err)
		}
	}
	return next
}

// reclaim claims every pending entry of one batch whose lease has run out
// and buffers them. The scan is rate limited per queue unless the previous
// one found work.
func (b *RedisBroker) reclaim(ctx context.Context, name Name) error {
	b.mu.Lock()
	if time.Since(b.lastReclaim[name]) < b.cfg.ReclaimEvery {
		b.mu.Unlock()
		return nil
	}
	b.lastReclaim[name] = time.Now()
	minIdle := b.minLease[name]
	b.mu.Unlock()

	stream := b.StreamName(name)
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  b.cfg.Group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  b.cfg.ReclaimBatch,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: failed to list pending entries of %s: %v", ErrUnavailable, stream, err)
	}
	if len(pending) == 0 {
		return nil
	}

	ranges := make([]*redis.XMessageSliceCmd, len(pending))
	if _, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range pending {
			ranges[i] = pipe.XRangeN(ctx, stream, p.ID, p.ID, 1)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("%w: failed to read pending entries of %s: %v", ErrUnavailable, stream, err)
	}

	type candidate struct {
		env   *Envelope
		entry redis.XPendingExt
		claim *redis.Cmd
	}
	var candidates []candidate

	for i, p := range pending {
		msgs := ranges[i].Val()
		if len(msgs) == 0 {
			b.client.XAck(ctx, stream, b.cfg.Group, p.ID)
			continue
		}

		env, err := decodeMessage(msgs[0])
		if err != nil {
			slog.Error("Dropping malformed message", "queue", name, "message_id", p.ID, "error", err)
			b.drop(ctx, stream, p.ID)
			continue
		}
		b.observeLease(name, env.Lease())

		if p.Idle < env.Lease() {
			continue
		}
		candidates = append(candidates, candidate{env: env, entry: p})
	}
	if len(candidates) == 0 {
		return nil
	}

	// The delivery count is set explicitly so the attempt number does not
	// depend on how the server treats JUSTID.
	if _, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range candidates {
			c := &candidates[i]
			c.claim = pipe.Do(ctx, "XCLAIM", stream, b.cfg.Group, b.cfg.Consumer,
				c.env.Lease().Milliseconds(), c.entry.ID,
				"RETRYCOUNT", c.entry.RetryCount+1, "JUSTID")
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: failed to claim pending entries of %s: %v", ErrUnavailable, stream, err)
	}

	now := time.Now()
	found := false

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range candidates {
		ids, err := c.claim.StringSlice()
		if err != nil || len(ids) == 0 {
			// Claimed by another consumer in the meantime.
			continue
		}
		b.reclaimed[name] = append(b.reclaimed[name], reclaimedEntry{
			delivery:  &Delivery{Envelope: *c.env, Attempt: int(c.entry.RetryCount) + 1, Receipt: c.entry.ID},
			claimedAt: now,
			lease:     c.env.Lease(),
		})
		found = true
	}
	if found {
		b.lastReclaim[name] = time.Time{}
	}
	return nil
}

// setDeliveryCount takes d over for this consumer, restarts its idle clock
// and pins the stream's delivery counter to count.
func (b *RedisBroker) setDeliveryCount(ctx context.Context, d *Delivery, count int) error {
	return b.client.Do(ctx, "XCLAIM", b.StreamName(d.Queue), b.cfg.Group, b.cfg.Consumer,
		0, d.Receipt, "RETRYCOUNT", count, "JUSTID").Err()
}

func (b *RedisBroker) drop(ctx context.Context, stream, id string) {
	b.client.XAck(ctx, stream, b.cfg.Group, id)
	b.client.XDel(ctx, stream, id)
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	stream := b.StreamName(d.Queue)

	if _, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, b.cfg.Group, d.Receipt)
		pipe.XDel(ctx, stream, d.Receipt)
		if d.ResultTTL > 0 {
			pipe.Set(ctx, b.resultKey(d.ID), string(StateCompleted), d.ResultTTL)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("%w: failed to ack %s: %v", ErrUnavailable, d.ID, err)
	}
	return nil
}

// Retry leaves the entry pending and restarts its idle clock, so it is
// claimed again once the lease passes. The delivery counter stays at the
// attempt that just failed.
func (b *RedisBroker) Retry(ctx context.Context, d *Delivery) error {
	if err := b.setDeliveryCount(ctx, d, d.Attempt); err != nil {
		return fmt.Errorf("%w: failed to schedule retry of %s: %v", ErrUnavailable, d.ID, err)
	}
	return nil
}

// Completed reports whether the job's result marker is still retained.
func (b *RedisBroker) Completed(ctx context.Context, id string) (bool, error) {
	n, err := b.client.Exists(ctx, b.resultKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (b *RedisBroker) Stats(ctx context.Context, name Name) (Stats, error) {
	if err := b.ensureGroup(ctx, name); err != nil {
		return Stats{}, err
	}
	stream := b.StreamName(name)

	length, err := b.client.XLen(ctx, stream).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: failed to read length of %s: %v", ErrUnavailable, stream, err)
	}

	var inflight int64
	summary, err := b.client.XPending(ctx, stream, b.cfg.Group).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("%w: failed to read pending summary of %s: %v", ErrUnavailable, stream, err)
	}
	if summary != nil {
		inflight = summary.Count
	}

	return Stats{Queue: name, Depth: length - inflight, InFlight: inflight}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func decodeMessage(msg redis.XMessage) (*Envelope, error) {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return nil, errors.New("missing envelope field")
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}
