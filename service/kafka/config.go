package kafka

import "github.com/Shopify/sarama"

// In-code 配置（不读 YAML）
type AppConfig struct {
	Brokers               []string
	GroupID               string
	WebhookTopic          string // provider 推送事件进入的 topic
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	KafkaVersion          sarama.KafkaVersion
}

// 默认配置（可直接改）
var Cfg = AppConfig{
	Brokers:               []string{"127.0.0.1:9092"},
	GroupID:               "inbox-sync-consumer-1",
	WebhookTopic:          "provider_webhook_events",
	ProducerRetries:       5,
	ProducerCompression:   "snappy",
	ConsumerInitialOffset: "newest",
	KafkaVersion:          sarama.V2_1_0_0,
}
