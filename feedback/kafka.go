package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/hybridrec/metrics"
)

// producer 是 *kgo.Client 中用到的部分。
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaConfig Kafka 采集器配置。
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`

	BatchSize     int           `koanf:"batch_size"`     // 达到后立即发送
	FlushInterval time.Duration `koanf:"flush_interval"` // 定时发送间隔

	ClientID     string `koanf:"client_id"`
	RequiredAcks int16  `koanf:"required_acks"` // 0=不等待, 1=leader, -1=all
	Compression  string `koanf:"compression"`   // gzip, snappy, lz4, zstd
	MaxRetries   int    `koanf:"max_retries"`
}

func (c *KafkaConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.ClientID == "" {
		c.ClientID = "hybridrec-feedback"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// KafkaCollector 把事件按批写入 Kafka topic，key 为 user_id 以保证同一用户有序。
//
// 定时刷新由 Serve 驱动（可挂到 suture 监督树上）；Close 发送剩余缓冲并关闭客户端。
type KafkaCollector struct {
	client    producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	buffer    []Event
	closed    bool
	closeOnce sync.Once
}

// NewKafkaCollector 创建 Kafka 采集器。franz-go 延迟建立连接，这里不会访问 broker。
func NewKafkaCollector(cfg KafkaConfig, logger zerolog.Logger) (*KafkaCollector, error) {
	cfg.applyDefaults()

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordRetries(cfg.MaxRetries),
	}
	switch cfg.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 1:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	}
	switch cfg.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return newKafkaCollector(client, cfg, logger), nil
}

func newKafkaCollector(client producer, cfg KafkaConfig, logger zerolog.Logger) *KafkaCollector {
	cfg.applyDefaults()
	return &KafkaCollector{
		client:    client,
		topic:     cfg.Topic,
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		logger:    logger,
		buffer:    make([]Event, 0, cfg.BatchSize),
	}
}

// Record 缓冲事件；达到批量大小时触发发送。关闭后静默丢弃。
func (c *KafkaCollector) Record(_ context.Context, events ...Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.buffer = append(c.buffer, events...)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		c.flush()
	}
	return nil
}

// Serve 定时刷新缓冲，直到 ctx 结束。
func (c *KafkaCollector) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return ctx.Err()
		}
	}
}

func (c *KafkaCollector) String() string { return "feedback-kafka" }

// pending 返回尚未发送的事件数。
func (c *KafkaCollector) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// flush 把缓冲交给 franz-go 异步发送，结果只记录到日志和指标。
func (c *KafkaCollector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	events := c.buffer
	c.buffer = make([]Event, 0, c.batchSize)
	c.mu.Unlock()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			metrics.RecordFeedback(err)
			continue
		}
		record := &kgo.Record{
			Topic: c.topic,
			Key:   []byte(ev.UserID),
			Value: data,
		}
		c.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
			metrics.RecordFeedback(err)
			if err != nil {
				c.logger.Warn().Err(err).Str("topic", c.topic).Msg("feedback event dropped")
			}
		})
	}
}

// Close 发送剩余缓冲，等待在途记录完成后关闭客户端。
func (c *KafkaCollector) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.flush()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.client.Flush(ctx)
		c.client.Close()
	})
	return err
}
