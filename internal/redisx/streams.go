package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultEventStream 呼叫事件默认流名
const DefaultEventStream = "carecall:events"

// maxStreamLength 事件流近似截断长度，避免无人消费时无限增长
const maxStreamLength = 10000

// StreamPublisher 把呼叫生命周期事件发布到 Redis Streams
// 供 CRUD/API 层和下游聚合服务实时消费
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher 创建流发布器，stream 为空时使用 DefaultEventStream
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = DefaultEventStream
	}
	return &StreamPublisher{client: client, stream: stream}
}

// PublishJSON 序列化为 JSON 并通过 XADD 写入流
func (p *StreamPublisher) PublishJSON(ctx context.Context, data any) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream:       p.stream,
		MaxLenApprox: maxStreamLength,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}
