package kafka

import (
	"context"

	"LinkProject/logger"

	"github.com/Shopify/sarama"
)

type ConsumerGroupHandler struct{}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group setup")
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group cleanup")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		logger.Debugf("received message | topic=%s | partition=%d | offset=%d", msg.Topic, msg.Partition, msg.Offset)

		handler, err := GetHandler(msg.Topic)
		if err != nil {
			logger.Warnf("no handler for topic %s: %v", msg.Topic, err)
		} else {
			// 单条处理失败只记录，不中断整个 claim，事件层自己保证幂等
			if err := handler(msg.Topic, msg.Key, msg.Value); err != nil {
				logger.Errorf("handler error for topic %s: %v", msg.Topic, err)
			}
		}

		session.MarkMessage(msg, "")
	}
	return nil
}

func StartConsumerGroup(ctx context.Context, brokers []string, groupID string, topics []string) error {
	config := BuildBaseConfig()

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return err
	}

	go func() {
		for err := range group.Errors() {
			logger.Errorf("consumer group error: %v", err)
		}
	}()

	handler := &ConsumerGroupHandler{}
	for {
		select {
		case <-ctx.Done():
			return group.Close()
		default:
		}
		if err := group.Consume(ctx, topics, handler); err != nil {
			logger.Errorf("consume error: %v", err)
		}
	}
}
