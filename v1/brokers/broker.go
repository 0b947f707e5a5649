// Package brokers implements BrokerChannel: the AMQP
// transport both client and service sides push Envelopes through. The base
// Broker type supplies New/startConsuming/stopConsuming/retryFunc plumbing,
// embedded into AMQPBroker via the Broker struct.
package brokers

import (
	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

// TaskProcessor is implemented by whatever consumes delivered envelopes —
// the Dispatcher on the service side. The client-side ReplyWaiter does not
// use it; it polls GetOne instead.
type TaskProcessor interface {
	Process(envelope tasks.Envelope) error
}

// Interface is the BrokerChannel contract: publish an envelope, or start/
// stop a consume loop that feeds TaskProcessor.
type Interface interface {
	Publish(envelope tasks.Envelope) error
	StartConsuming(consumerTag string, concurrency int, processor TaskProcessor) (bool, error)
	StopConsuming()
	GetOne() (tasks.Envelope, bool, func(ack bool) error, error)
}

// Broker holds the fields every Interface implementation shares: the
// resolved configuration and the consume-loop's stop signal, mirroring the
// teacher's unexported Broker base embedded into AMQPBroker.
type Broker struct {
	cnf       *config.Config
	retry     bool
	stopChan  chan struct{}
	retryFunc func(stopChan chan struct{})
}

// New constructs the shared Broker base.
func New(cnf *config.Config) Broker {
	return Broker{
		cnf:      cnf,
		retry:    true,
		stopChan: make(chan struct{}),
		retryFunc: func(stopChan chan struct{}) {
			<-stopChan
		},
	}
}

func (b *Broker) startConsuming() {
	select {
	case <-b.stopChan:
		b.stopChan = make(chan struct{})
	default:
	}
}

func (b *Broker) stopConsuming() {
	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}
}
