package kafka

import (
	"errors"

	"github.com/Shopify/sarama"
)

// SendSync 同步发送。key 用账号ID，保证同一账号的事件进同一分区（有序）。
func SendSync(topic, key string, value []byte) error {
	if Producer == nil {
		return errors.New("kafka producer not initialized")
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := Producer.SendMessage(msg)
	return err
}
