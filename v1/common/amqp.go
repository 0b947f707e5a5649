// Package common holds the AMQP connection/channel plumbing shared by
// v1/brokers, factored into its own package (imported by v1/brokers/amqp.go
// as common.AMQPConnector) rather than embedding dial and topology logic
// directly in the broker.
package common

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/log"
)

// AMQPConnector owns the broker TCP connection and the error-propagation
// channel the consume loop selects on via AMQPBroker.AMQPConnector.ErrChan().
type AMQPConnector struct {
	cnf *config.AMQP
	tls *tls.Config

	mu      sync.Mutex
	conn    *amqp.Connection
	errChan chan error
}

// NewAMQPConnector constructs a connector; it does not dial until Connect
// is called.
func NewAMQPConnector(cnf *config.AMQP, tlsConfig *tls.Config) *AMQPConnector {
	return &AMQPConnector{cnf: cnf, tls: tlsConfig, errChan: make(chan error, 1)}
}

// Connect dials the broker (or reuses an existing live connection) and
// arms a watcher goroutine that forwards amqp.Connection.NotifyClose onto
// ErrChan(), so the broker's consume loop learns about a dropped
// connection without polling.
func (c *AMQPConnector) Connect() (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	var conn *amqp.Connection
	var err error
	if c.tls != nil {
		conn, err = amqp.DialTLS(c.cnf.URI(), c.tls)
	} else {
		conn, err = amqp.Dial(c.cnf.URI())
	}
	if err != nil {
		return nil, fmt.Errorf("common: dial amqp: %w", err)
	}

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closeNotify; ok {
			log.ERROR.Printf("amqp connection closed: %v", amqpErr)
			select {
			case c.errChan <- amqpErr:
			default:
			}
		}
	}()

	c.conn = conn
	return conn, nil
}

// ErrChan is selected on by the broker's consume loop to detect a dropped
// connection, mirroring AMQPBroker's b.AMQPConnector.ErrChan() usage.
func (c *AMQPConnector) ErrChan() <-chan error {
	return c.errChan
}

// Channel opens a fresh channel on the current connection, (re)dialing if
// necessary, and puts it into publisher-confirm mode.
func (c *AMQPConnector) Channel() (*amqp.Channel, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("common: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("common: enable confirms: %w", err)
	}
	return ch, nil
}

// Exchange declares exchangeName/queueName/the binding between them on a
// fresh channel and returns it. The call shape (exchange name, exchange
// type, queue name, queue durable, queue auto-delete, binding key,
// exchange args, queue args, binding args) is used throughout
// v1/brokers/amqp.go.
func (c *AMQPConnector) Exchange(
	exchangeName, exchangeType, queueName string,
	queueDurable, queueAutoDelete bool,
	bindingKey string,
	exchangeDeclareArgs, queueDeclareArgs, queueBindingArgs amqp.Table,
) (*amqp.Channel, amqp.Queue, error) {
	channel, err := c.Channel()
	if err != nil {
		return nil, amqp.Queue{}, err
	}

	if err := channel.ExchangeDeclare(
		exchangeName, exchangeType, true, false, false, false, exchangeDeclareArgs,
	); err != nil {
		_ = channel.Close()
		return nil, amqp.Queue{}, fmt.Errorf("common: declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		queueName, queueDurable, queueAutoDelete, false, false, queueDeclareArgs,
	)
	if err != nil {
		_ = channel.Close()
		return nil, amqp.Queue{}, fmt.Errorf("common: declare queue: %w", err)
	}

	if err := channel.QueueBind(
		queue.Name, bindingKey, exchangeName, false, queueBindingArgs,
	); err != nil {
		_ = channel.Close()
		return nil, amqp.Queue{}, fmt.Errorf("common: bind queue: %w", err)
	}

	return channel, queue, nil
}

// Close shuts down the underlying connection, if any.
func (c *AMQPConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
