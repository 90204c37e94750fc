package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/benithors/dotpricecli/internal/logging"
)

// Job asks a worker to run the registration pipeline for an order.
type Job struct {
	OrderID    string    `json:"order_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one job. A returned error leaves the job unacknowledged.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume blocks, feeding jobs to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

func encodeJob(job Job) ([]byte, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return b, nil
}

func decodeJob(b []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.OrderID == "" {
		return Job{}, errors.New("job without order id")
	}
	return job, nil
}

type RedisQueueOptions struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	// BatchSize caps entries per read or claim.
	BatchSize int64
	// Entries pending longer than ClaimIdle are taken over, from any
	// consumer in the group, every ClaimInterval.
	ClaimIdle     time.Duration
	ClaimInterval time.Duration
	Logger        logrus.FieldLogger
}

// RedisQueue is a Redis stream read through a consumer group. Entries are
// acknowledged once the handler succeeds. On start a consumer replays its
// own pending entries; while running it reclaims entries that stayed
// pending too long, whether left by a failed handler or a dead consumer.
type RedisQueue struct {
	client *redis.Client
	opts   RedisQueueOptions
	log    *logrus.Entry
}

func NewRedisQueue(client *redis.Client, opts RedisQueueOptions) *RedisQueue {
	if opts.Stream == "" {
		opts.Stream = "dotprice:orders"
	}
	if opts.Group == "" {
		opts.Group = "dotprice-workers"
	}
	if opts.Consumer == "" {
		opts.Consumer, _ = os.Hostname()
		if opts.Consumer == "" {
			opts.Consumer = "worker"
		}
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = 30 * time.Second
	}
	return &RedisQueue{
		client: client,
		opts:   opts,
		log:    logging.Component(opts.Logger, "queue").WithField("stream", opts.Stream),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.opts.Stream,
		Values: map[string]any{"job": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis enqueue failed: %w", err)
	}
	return nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.opts.Stream, q.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis create group failed: %w", err)
	}
	return nil
}

func (q *RedisQueue) Consume(ctx context.Context, h Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	if err := q.replayPending(ctx, h); err != nil && ctx.Err() == nil {
		q.log.WithError(err).Warn("pending replay failed, relying on reclaim")
	}

	nextClaim := time.Now()
	for ctx.Err() == nil {
		if !time.Now().Before(nextClaim) {
			q.reclaim(ctx, h)
			nextClaim = time.Now().Add(q.opts.ClaimInterval)
		}

		msgs, err := q.read(ctx, ">", q.opts.Block)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.log.WithError(err).Warn("read failed")
			if serr := sleepCtx(ctx, time.Second); serr != nil {
				return nil
			}
			continue
		}
		for _, msg := range msgs {
			q.handle(ctx, msg, h)
		}
	}
	return nil
}

// replayPending walks this consumer's pending entries batch by batch. The
// cursor moves past each batch, so entries that fail again stay pending
// for reclaim instead of being read in a loop.
func (q *RedisQueue) replayPending(ctx context.Context, h Handler) error {
	cursor := "0"
	for ctx.Err() == nil {
		msgs, err := q.read(ctx, cursor, -1)
		if errors.Is(err, redis.Nil) || (err == nil && len(msgs) == 0) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			q.handle(ctx, msg, h)
		}
		cursor = msgs[len(msgs)-1].ID
	}
	return nil
}

// read issues one XREADGROUP. A negative block reads history without
// blocking.
func (q *RedisQueue) read(ctx context.Context, cursor string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.opts.Group,
		Consumer: q.opts.Consumer,
		Streams:  []string{q.opts.Stream, cursor},
		Count:    q.opts.BatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// reclaim makes one pass over the group's pending list, taking over and
// handling every entry idle for at least ClaimIdle.
func (q *RedisQueue) reclaim(ctx context.Context, h Handler) {
	start := "0-0"
	for ctx.Err() == nil {
		msgs, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.opts.Stream,
			Group:    q.opts.Group,
			MinIdle:  q.opts.ClaimIdle,
			Start:    start,
			Count:    q.opts.BatchSize,
			Consumer: q.opts.Consumer,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				q.log.WithError(err).Warn("reclaim failed")
			}
			return
		}
		if len(msgs) > 0 {
			q.log.WithField("entries", len(msgs)).Info("reclaimed idle jobs")
		}
		for _, msg := range msgs {
			q.handle(ctx, msg, h)
		}
		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

func (q *RedisQueue) handle(ctx context.Context, msg redis.XMessage, h Handler) {
	log := q.log.WithField("entry", msg.ID)
	raw, _ := msg.Values["job"].(string)
	job, err := decodeJob([]byte(raw))
	if err != nil {
		// Undecodable entries can never succeed.
		log.WithError(err).Error("dropping malformed job")
		q.ack(ctx, msg.ID)
		return
	}
	if err := h(ctx, job); err != nil {
		log.WithError(err).WithField("order_id", job.OrderID).Error("job failed, left pending")
		return
	}
	q.ack(ctx, msg.ID)
}

// ack still runs after ctx is cancelled so finished work is not redone.
func (q *RedisQueue) ack(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := q.client.XAck(ctx, q.opts.Stream, q.opts.Group, id).Err(); err != nil {
		q.log.WithError(err).WithField("entry", id).Warn("ack failed")
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

type KafkaQueueOptions struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  logrus.FieldLogger
}

// KafkaQueue writes jobs keyed by order ID and reads them through a
// consumer group, committing offsets after the handler succeeds.
type KafkaQueue struct {
	writer *kafka.Writer
	log    *logrus.Entry

	// The reader joins the consumer group as soon as it exists, so it is
	// only created by Consume.
	readerCfg kafka.ReaderConfig
	mu        sync.Mutex
	reader    *kafka.Reader
}

func NewKafkaQueue(opts KafkaQueueOptions) *KafkaQueue {
	if opts.Topic == "" {
		opts.Topic = "dotprice.orders"
	}
	if opts.GroupID == "" {
		opts.GroupID = "dotprice-workers"
	}
	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Topic:                  opts.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		readerCfg: kafka.ReaderConfig{
			Brokers:  opts.Brokers,
			Topic:    opts.Topic,
			GroupID:  opts.GroupID,
			MaxBytes: 10e6, // 10MB
		},
		log: logging.Component(opts.Logger, "queue").WithField("topic", opts.Topic),
	}
}

func jobMessage(job Job) (kafka.Message, error) {
	data, err := encodeJob(job)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(job.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("order.paid")},
		},
	}, nil
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	msg, err := jobMessage(job)
	if err != nil {
		return err
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka enqueue failed: %w", err)
	}
	return nil
}

// Consume returns the handler's error without committing, so the job is
// redelivered to the group after a restart.
func (q *KafkaQueue) Consume(ctx context.Context, h Handler) error {
	q.mu.Lock()
	if q.reader == nil {
		q.reader = kafka.NewReader(q.readerCfg)
	}
	r := q.reader
	q.mu.Unlock()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch failed: %w", err)
		}
		job, err := decodeJob(m.Value)
		if err != nil {
			q.log.WithError(err).WithField("offset", m.Offset).Error("dropping malformed job")
		} else if err := h(ctx, job); err != nil {
			return fmt.Errorf("job %s: %w", job.OrderID, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			q.log.WithError(err).WithField("offset", m.Offset).Warn("commit failed")
		}
	}
}

func (q *KafkaQueue) Close() error {
	err := q.writer.Close()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reader != nil {
		err = errors.Join(err, q.reader.Close())
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
