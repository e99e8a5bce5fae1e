// Package redis keeps execution records and step logs in Redis so that
// several engine processes can share run state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Config holds the Redis connection and key layout
type Config struct {
	Addr      string        `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db" default:"0" validate:"gte=0"`
	Namespace string        `yaml:"namespace" default:"agentflow" validate:"required"`
	TTL       time.Duration `yaml:"ttl" default:"168h" validate:"gte=0"`
}

// RedisPlugin implements the execution and step log stores
type RedisPlugin struct {
	Config Config
	Logger *slog.Logger
	client *redis.Client
	now    func() time.Time
}

var (
	_ plugin.ExecutionStore = (*RedisPlugin)(nil)
	_ plugin.StepLogStore   = (*RedisPlugin)(nil)
	_ plugin.Lifecycle      = (*RedisPlugin)(nil)
)

func (p *RedisPlugin) Initialize(ctx context.Context) error {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}

	p.client = redis.NewClient(&redis.Options{
		Addr:     p.Config.Addr,
		Password: p.Config.Password,
		DB:       p.Config.DB,
	})
	if err := p.client.Ping(ctx).Err(); err != nil {
		_ = p.client.Close()
		p.client = nil
		return fmt.Errorf("redis: failed to ping %s: %w", p.Config.Addr, err)
	}

	p.Logger.InfoContext(ctx, "Connected to redis", "addr", p.Config.Addr, "db", p.Config.DB, "namespace", p.Config.Namespace)
	return nil
}

func (p *RedisPlugin) Shutdown(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *RedisPlugin) executionKey(id string) string {
	return p.Config.Namespace + ":execution:" + id
}

func (p *RedisPlugin) stepsKey(id string) string {
	return p.Config.Namespace + ":steps:" + id
}

func (p *RedisPlugin) CreateExecution(ctx context.Context, workflowID string, trigger map[string]any) (*plugin.ExecutionRecord, error) {
	record := &plugin.ExecutionRecord{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		Status:      plugin.StatusRunning,
		TriggerData: maps.Clone(trigger),
		StartedAt:   p.now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("redis: encode execution: %w", err)
	}
	if err := p.client.Set(ctx, p.executionKey(record.ID), data, p.Config.TTL).Err(); err != nil {
		return nil, fmt.Errorf("redis: create execution: %w", err)
	}
	return record, nil
}

func (p *RedisPlugin) UpdateExecution(ctx context.Context, update plugin.ExecutionUpdate) error {
	record, err := p.GetExecution(ctx, update.ExecutionID)
	if err != nil {
		return err
	}
	record.Status = update.Status
	record.CompletedAt = update.CompletedAt
	record.ResultData = update.ResultData
	record.Error = update.Error
	record.ErrorKind = update.ErrorKind

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis: encode execution: %w", err)
	}
	err = p.client.SetArgs(ctx, p.executionKey(record.ID), data, redis.SetArgs{KeepTTL: true}).Err()
	if err != nil {
		return fmt.Errorf("redis: update execution: %w", err)
	}
	return nil
}

func (p *RedisPlugin) GetExecution(ctx context.Context, id string) (*plugin.ExecutionRecord, error) {
	data, err := p.client.Get(ctx, p.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", plugin.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get execution: %w", err)
	}

	var record plugin.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("redis: decode execution %s: %w", id, err)
	}
	return &record, nil
}

func (p *RedisPlugin) AppendStepLog(ctx context.Context, entry plugin.StepLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: encode step log: %w", err)
	}

	key := p.stepsKey(entry.ExecutionID)
	pipe := p.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if p.Config.TTL > 0 {
		pipe.Expire(ctx, key, p.Config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append step log: %w", err)
	}
	return nil
}

func (p *RedisPlugin) ListStepLogs(ctx context.Context, executionID string) ([]plugin.StepLogEntry, error) {
	items, err := p.client.LRange(ctx, p.stepsKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list step logs: %w", err)
	}

	out := make([]plugin.StepLogEntry, 0, len(items))
	for _, item := range items {
		var entry plugin.StepLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("redis: decode step log: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
