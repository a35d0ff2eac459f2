package rabbit

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logging "malasakit/pkg/logger/pkg"
)

type Rabbit interface {
	Consume(ctx context.Context, consumeFunction func(ctx context.Context, msg amqp.Delivery) error) error
	Publish(ctx context.Context, body []byte) error
}

// Config mirrors the `rabbitmq` section of config.yaml.
type Config struct {
	Enabled      bool
	Address      string
	Port         int32
	Username     string
	Password     string
	ConsumeQueue string
	PublicQueue  string
	MaxConsumer  int32
	ExpireTime   int32
}

type rabbit struct {
	connectionUrl string
	comsumeQueue  string
	publicQueue   string
	maxConsumer   int32
	expireTime    int32
	retryInitial  time.Duration
	retryMax      time.Duration
}

func ReadConfig() *Config {
	viper.BindEnv("rabbitmq.enabled", "RABBITMQ_ENABLED")
	viper.BindEnv("rabbitmq.address", "RABBITMQ_ADDRESS")
	viper.BindEnv("rabbitmq.username", "RABBITMQ_USERNAME")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASSWORD")

	return &Config{
		Enabled:      viper.GetBool("rabbitmq.enabled"),
		Address:      viper.GetString("rabbitmq.address"),
		Port:         viper.GetInt32("rabbitmq.port"),
		Username:     viper.GetString("rabbitmq.username"),
		Password:     viper.GetString("rabbitmq.password"),
		ConsumeQueue: viper.GetString("rabbitmq.consume_queue"),
		PublicQueue:  viper.GetString("rabbitmq.public_queue"),
		MaxConsumer:  viper.GetInt32("rabbitmq.max_consumer"),
		ExpireTime:   viper.GetInt32("rabbitmq.expire_time"),
	}
}

func New(rb *Config) Rabbit {
	if rb == nil || !rb.Enabled {
		return &Dummy{}
	}

	maxConsumer := rb.MaxConsumer
	if maxConsumer <= 0 {
		maxConsumer = 1
	}

	connectionUrl := fmt.Sprintf("amqp://%s:%s@%s:%d/", rb.Username, rb.Password, rb.Address, rb.Port)
	return &rabbit{
		connectionUrl: connectionUrl,
		comsumeQueue:  rb.ConsumeQueue,
		publicQueue:   rb.PublicQueue,
		maxConsumer:   maxConsumer,
		expireTime:    rb.ExpireTime,
		retryInitial:  time.Second,
		retryMax:      30 * time.Second,
	}
}

func (r *rabbit) processMessage(ctx context.Context, msg amqp.Delivery, sem chan struct{}, consumeFunction func(ctx context.Context, msg amqp.Delivery) error) {
	logging.Logger(ctx).Info("Received message", zap.ByteString("body", msg.Body))
	defer func() { <-sem }()

	if err := consumeFunction(ctx, msg); err != nil {
		logging.Logger(ctx).Error("Failed to handle message", zap.Error(err))
		msg.Nack(false, !msg.Redelivered)
	} else {
		msg.Ack(false)
	}
}

// Consume blocks until ctx is cancelled. Lost or refused connections are
// retried with backoff, so a broker outage only pauses consumption.
func (r *rabbit) Consume(ctx context.Context, consumeFunction func(ctx context.Context, msg amqp.Delivery) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retryInitial
	bo.MaxInterval = r.retryMax
	bo.MaxElapsedTime = 0
	retry := backoff.WithContext(bo, ctx)

	for {
		err := r.consume(ctx, consumeFunction, retry.Reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := retry.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		logging.Logger(ctx).Warn("RabbitMQ consumer disconnected, retrying",
			zap.String("queue", r.comsumeQueue),
			zap.Duration("wait", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// consume runs one connection until it fails or ctx ends. connected is called
// once deliveries start flowing.
func (r *rabbit) consume(ctx context.Context, consumeFunction func(ctx context.Context, msg amqp.Delivery) error, connected func()) error {
	conn, err := amqp.Dial(r.connectionUrl)
	if err != nil {
		return err
	}
	defer conn.Close()

	logging.Logger(ctx).Info("Connected to RabbitMQ", zap.String("queue", r.comsumeQueue))

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(r.comsumeQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	connected()
	return r.dispatch(ctx, msgs, consumeFunction)
}

// dispatch hands deliveries to at most maxConsumer concurrent handlers.
func (r *rabbit) dispatch(ctx context.Context, msgs <-chan amqp.Delivery, consumeFunction func(ctx context.Context, msg amqp.Delivery) error) error {
	sem := make(chan struct{}, r.maxConsumer)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Unacked, so the broker redelivers it once the channel closes.
				return nil
			}
			go r.processMessage(ctx, msg, sem, consumeFunction)
		}
	}
}

func (r *rabbit) Publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(r.connectionUrl)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(r.publicQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}
	if r.expireTime > 0 {
		publishing.Expiration = fmt.Sprintf("%d", r.expireTime)
	}
	if err := ch.PublishWithContext(ctx, "", q.Name, false, false, publishing); err != nil {
		return err
	}

	logging.Logger(ctx).Debug("Sent message", zap.String("queue", q.Name), zap.Int("bytes", len(body)))
	return nil
}
