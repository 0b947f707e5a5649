package brokers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	lzo "github.com/GetStream/go-lzo"
	"github.com/streadway/amqp"
	"golang.org/x/sync/semaphore"

	"github.com/EliseyGodX/SchedulerGodX/v1/common"
	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/log"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

// encodingLZO is the amqp.Publishing.ContentEncoding value used for a
// compressed envelope body.
const encodingLZO = "lzo"

// AMQPBroker is the concrete BrokerChannel. It keeps the
// teacher's embedding shape (Broker base + *common.AMQPConnector) and its
// size-triggered LZO body compression, but carries tasks.Envelope wire
// messages instead of machinery's tasks.Signature, and drops the
// TTL/dead-letter delay-queue trick some AMQP brokers use for ETA
// scheduling: delay scheduling belongs to the in-process Scheduler
// instead, so the broker only ever publishes messages meant to be
// delivered immediately.
type AMQPBroker struct {
	Broker
	*common.AMQPConnector
}

// NewAMQPBroker constructs an AMQPBroker bound to cnf.
func NewAMQPBroker(cnf *config.Config) Interface {
	return &AMQPBroker{
		Broker:        New(cnf),
		AMQPConnector: common.NewAMQPConnector(&cnf.AMQP, cnf.TLSConfig),
	}
}

func shouldCompress(body []byte) bool {
	return len(body) > 100
}

func (b *AMQPBroker) exchange(queueName, bindingKey string, queueDeclareArgs amqp.Table) (*amqp.Channel, amqp.Queue, error) {
	args := amqp.Table(b.cnf.AMQP.QueueBindingArgs)
	return b.Exchange(
		b.cnf.AMQP.Exchange,
		b.cnf.AMQP.ExchangeType,
		queueName,
		true,  // queue durable
		false, // queue auto-delete
		bindingKey,
		nil, // exchange declare args
		queueDeclareArgs,
		args,
	)
}

// decodeBody reverses shouldCompress's LZO compression before handing the
// bytes to the codec.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding != encodingLZO {
		return body, nil
	}
	return lzo.Decompress1X(bytes.NewReader(body), len(body), 0)
}

// Publish places an envelope on the configured default queue. Scheduling
// a future activation is the Scheduler's job, not the broker's: by the
// time an envelope reaches Publish it is meant to be delivered now.
func (b *AMQPBroker) Publish(envelope tasks.Envelope) error {
	message, err := tasks.Encode(envelope)
	if err != nil {
		return fmt.Errorf("brokers: encode envelope: %w", err)
	}

	channel, _, err := b.exchange(b.cnf.DefaultQueue, b.cnf.AMQP.BindingKey, nil)
	if err != nil {
		return err
	}
	defer channel.Close()

	confirms := channel.NotifyPublish(make(chan amqp.Confirmation, 1))

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         message,
		DeliveryMode: amqp.Persistent,
	}
	if shouldCompress(message) {
		publishing.Body = lzo.Compress1X(message)
		publishing.ContentEncoding = encodingLZO
	}

	if err := channel.Publish(
		b.cnf.AMQP.Exchange,
		b.cnf.AMQP.BindingKey,
		false, // mandatory
		false, // immediate
		publishing,
	); err != nil {
		return fmt.Errorf("brokers: publish: %w", err)
	}

	confirmed := <-confirms
	if confirmed.Ack {
		return nil
	}
	return fmt.Errorf("brokers: broker did not confirm delivery tag %d", confirmed.DeliveryTag)
}

// GetOne performs a single non-blocking basic.get against the reply
// queue and returns the decoded envelope along with a settle callback
// (ack=true acks, ack=false nacks with requeue), grounded on the original
// implementation's Consumer.get_response reply-matching loop
// (schedulergodx/client/consumer.py): tx_select + basic_get + selective
// ack/nack(requeue=True) so a message belonging to a different in-flight
// request is put back for another waiter to claim.
func (b *AMQPBroker) GetOne() (tasks.Envelope, bool, func(ack bool) error, error) {
	channel, queue, err := b.exchange(b.cnf.ReplyQueue, b.cnf.AMQP.BindingKey, nil)
	if err != nil {
		return tasks.Envelope{}, false, nil, err
	}

	delivery, ok, err := channel.Get(queue.Name, false)
	if err != nil {
		channel.Close()
		return tasks.Envelope{}, false, nil, fmt.Errorf("brokers: basic.get: %w", err)
	}
	if !ok {
		channel.Close()
		return tasks.Envelope{}, false, nil, nil
	}

	body, err := decodeBody(delivery.Body, delivery.ContentEncoding)
	if err != nil {
		_ = delivery.Nack(false, false)
		channel.Close()
		return tasks.Envelope{}, false, nil, fmt.Errorf("brokers: decompress envelope: %w", err)
	}

	envelope, err := tasks.Decode(body)
	if err != nil {
		_ = delivery.Nack(false, false)
		channel.Close()
		return tasks.Envelope{}, false, nil, fmt.Errorf("brokers: decode envelope: %w", err)
	}

	settle := func(ack bool) error {
		defer channel.Close()
		if ack {
			return delivery.Ack(false)
		}
		return delivery.Nack(false, true)
	}
	return envelope, true, settle, nil
}

// StartConsuming enters the service-side consume loop.
func (b *AMQPBroker) StartConsuming(consumerTag string, concurrency int, processor TaskProcessor) (bool, error) {
	b.startConsuming()

	channel, queue, err := b.exchange(b.cnf.DefaultQueue, b.cnf.AMQP.BindingKey, nil)
	if err != nil {
		return b.retry, err
	}
	defer channel.Close()

	if err := channel.Qos(b.cnf.AMQP.PrefetchCount, 0, false); err != nil {
		return b.retry, fmt.Errorf("brokers: channel qos: %w", err)
	}

	deliveries, err := channel.Consume(queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return b.retry, fmt.Errorf("brokers: queue consume: %w", err)
	}

	log.INFO.Print("[*] waiting for messages")

	if err := b.consume(deliveries, concurrency, processor); err != nil {
		return b.retry, err
	}
	return b.retry, nil
}

// StopConsuming signals the running consume loop to return.
func (b *AMQPBroker) StopConsuming() {
	b.stopConsuming()
}

func (b *AMQPBroker) consume(deliveries <-chan amqp.Delivery, concurrency int, processor TaskProcessor) error {
	if concurrency < 1 {
		concurrency = math.MaxInt64
	}

	pool := semaphore.NewWeighted(int64(concurrency))
	errorsChan := make(chan error)
	quitChan := make(chan struct{})

	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(quitChan)

	for {
		select {
		case amqpErr := <-b.AMQPConnector.ErrChan():
			return amqpErr
		case err := <-errorsChan:
			return err
		case d, open := <-deliveries:
			if !open {
				return nil
			}
			if err := pool.Acquire(context.TODO(), 1); err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				err := b.consumeOne(d, processor)
				wg.Done()
				pool.Release(1)
				if err != nil {
					select {
					case <-quitChan:
					case errorsChan <- err:
					}
				}
			}()
		case <-b.stopChan:
			return nil
		}
	}
}

// consumeOne decodes and dispatches a single delivery. The delivery is acked unconditionally: TaskStore, not broker
// redelivery, is what provides durability, so a processing error is
// logged rather than turned into a nack/requeue.
func (b *AMQPBroker) consumeOne(d amqp.Delivery, processor TaskProcessor) error {
	defer func() { _ = d.Ack(false) }()

	if len(d.Body) == 0 {
		return errors.New("brokers: received an empty message")
	}

	body, err := decodeBody(d.Body, d.ContentEncoding)
	if err != nil {
		return fmt.Errorf("brokers: decompress envelope: %w", err)
	}

	envelope, err := tasks.Decode(body)
	if err != nil {
		return fmt.Errorf("brokers: decode envelope: %w", err)
	}

	return processor.Process(envelope)
}
