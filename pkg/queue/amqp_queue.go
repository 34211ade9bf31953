package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"scitrek/internal/util"
)

// AMQPTaskQueue is a RabbitMQ backed TaskQueue. Job status is kept in
// process memory, so GetJob only answers for jobs this instance has
// seen; deployments that need cross-instance status use the Redis
// driver instead.
type AMQPTaskQueue struct {
	conn       *amqp.Connection
	queueName  string
	maxRetries int

	mu   sync.Mutex
	jobs map[string]JobStatus
}

type AMQPQueueConfig struct {
	URL        string
	Queue      string
	MaxRetries int
}

func NewAMQPTaskQueue(cfg AMQPQueueConfig) (*AMQPTaskQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	queueName := strings.TrimSpace(cfg.Queue)
	if queueName == "" {
		return nil, errors.New("amqp queue name required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPTaskQueue{
		conn:       conn,
		queueName:  queueName,
		maxRetries: maxRetries,
		jobs:       make(map[string]JobStatus),
	}, nil
}

type taskEnvelope struct {
	JobID    string `json:"job_id"`
	Kind     string `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
}

func (q *AMQPTaskQueue) Enqueue(ctx context.Context, kind, targetID string) (JobStatus, error) {
	kind = strings.TrimSpace(kind)
	if !ValidKind(kind) {
		return JobStatus{}, fmt.Errorf("unknown task kind %q", kind)
	}
	job := JobStatus{
		ID:        util.NewID(),
		Kind:      kind,
		TargetID:  strings.TrimSpace(targetID),
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := q.publish(ctx, job, 0); err != nil {
		return JobStatus{}, err
	}
	q.setStatus(job)
	return job, nil
}

func (q *AMQPTaskQueue) publish(ctx context.Context, job JobStatus, attempts int) error {
	body, err := json.Marshal(taskEnvelope{JobID: job.ID, Kind: job.Kind, TargetID: job.TargetID})
	if err != nil {
		return err
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	return ch.PublishWithContext(ctx, "", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-attempts": int32(attempts)},
		Body:         body,
	})
}

func (q *AMQPTaskQueue) GetJob(_ context.Context, jobID string) (JobStatus, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	return job, ok, nil
}

func (q *AMQPTaskQueue) setStatus(job JobStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
}

func (q *AMQPTaskQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, JobStatus) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, handler)
	}
}

func (q *AMQPTaskQueue) consumeLoop(ctx context.Context, handler func(context.Context, JobStatus) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := q.consumeOnce(ctx, handler); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (q *AMQPTaskQueue) consumeOnce(ctx context.Context, handler func(context.Context, JobStatus) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp deliveries channel closed")
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *AMQPTaskQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler func(context.Context, JobStatus) error) {
	var env taskEnvelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.JobID == "" || env.Kind == "" {
		_ = d.Ack(false)
		return
	}
	attempts := deliveryAttempts(d)
	job := JobStatus{
		ID:        env.JobID,
		Kind:      env.Kind,
		TargetID:  env.TargetID,
		Status:    StatusProcessing,
		Attempts:  attempts + 1,
		CreatedAt: d.Timestamp,
		UpdatedAt: time.Now().UTC(),
	}
	q.setStatus(job)

	err := handler(ctx, job)
	if err == nil {
		job.Status = StatusDone
		job.UpdatedAt = time.Now().UTC()
		q.setStatus(job)
		_ = d.Ack(false)
		return
	}
	job.ErrorMessage = err.Error()
	if job.Attempts >= q.maxRetries {
		job.Status = StatusFailed
		job.UpdatedAt = time.Now().UTC()
		q.setStatus(job)
		_ = d.Ack(false)
		return
	}
	job.Status = StatusQueued
	job.UpdatedAt = time.Now().UTC()
	q.setStatus(job)
	// Republish with a bumped attempt count, then ack the original so
	// the broker does not redeliver with a stale counter.
	if err := q.publish(ctx, job, job.Attempts); err != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deliveryAttempts(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers["x-attempts"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Close shuts the underlying connection.
func (q *AMQPTaskQueue) Close() error {
	return q.conn.Close()
}
