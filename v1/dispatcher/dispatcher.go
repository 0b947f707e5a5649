// Package dispatcher implements the protocol state machine invoked for
// every broker delivery. It is deliberately stateless: all persistence
// flows through the ClientRegistry and TaskSink it is constructed with,
// keeping per-message decision logic separate from the stateful
// components it drives (v1/brokers.AMQPBroker.consumeOne calls out to a
// TaskProcessor rather than embedding protocol logic in the broker
// itself).
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EliseyGodX/SchedulerGodX/v1/log"
	"github.com/EliseyGodX/SchedulerGodX/v1/registry"
	"github.com/EliseyGodX/SchedulerGodX/v1/store"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

func unmarshalArgs(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	return nil
}

// ReplyPort is the publish-only view of BrokerChannel the Dispatcher
// needs, breaking the Dispatcher↔ServiceCore↔Executor cyclic reference.
type ReplyPort interface {
	Publish(envelope tasks.Envelope) error
}

// Registry is the subset of ClientRegistry the Dispatcher drives.
type Registry interface {
	Contains(name string) bool
	Get(name string) (registry.Client, bool)
	Append(ctx context.Context, c registry.Client) error
}

// TaskSink is the accept-task view of TaskStore+Scheduler the Dispatcher
// needs: persist then arm, the TASK handling step, and
// invariant I1 (row exists before it is ever scheduled).
type TaskSink interface {
	SubmitTask(ctx context.Context, t store.Task) error
}

// Dispatcher is the protocol state machine. It holds no mutable state of
// its own.
type Dispatcher struct {
	reply    ReplyPort
	registry Registry
	sink     TaskSink
}

// New constructs a Dispatcher.
func New(reply ReplyPort, registry Registry, sink TaskSink) *Dispatcher {
	return &Dispatcher{reply: reply, registry: registry, sink: sink}
}

// Process implements brokers.TaskProcessor. The
// delivery is acked unconditionally by the caller regardless of what
// Process returns — TaskStore, not broker redelivery, provides durability.
// Process therefore only ever returns an error to signal something worth
// logging at the broker layer, never to request a requeue.
func (d *Dispatcher) Process(envelope tasks.Envelope) error {
	ctx := context.Background()

	if envelope.Type != tasks.Initialization && !d.registry.Contains(envelope.Client) {
		return d.replyError(envelope, tasks.UnregisteredClient, fmt.Sprintf("client %q is not registered", envelope.Client))
	}

	switch envelope.Type {
	case tasks.Initialization:
		return d.handleInitialization(ctx, envelope)
	case tasks.Info:
		log.INFO.Printf("info from %s: %s", envelope.Client, envelope.ID)
		return nil
	case tasks.Task:
		return d.handleTask(ctx, envelope)
	default:
		return d.replyError(envelope, tasks.IncorrectType, fmt.Sprintf("unknown message type %d", int(envelope.Type)))
	}
}

func (d *Dispatcher) handleInitialization(ctx context.Context, envelope tasks.Envelope) error {
	var args tasks.InitializationArgs
	if err := unmarshalArgs(envelope.Arguments, &args); err != nil {
		return d.replyError(envelope, tasks.BadInitialization, err.Error())
	}

	if err := d.registry.Append(ctx, registry.Client{Name: envelope.Client, EnableOverdue: args.EnableOverdue}); err != nil {
		return d.replyError(envelope, tasks.BadInitialization, err.Error())
	}

	reply, err := tasks.NewInfoOK(envelope.ID, envelope.Client)
	if err != nil {
		return err
	}
	return d.reply.Publish(reply)
}

func (d *Dispatcher) handleTask(ctx context.Context, envelope tasks.Envelope) error {
	var args tasks.TaskArgs
	if err := unmarshalArgs(envelope.Arguments, &args); err != nil {
		return d.replyError(envelope, tasks.InvalidTask, err.Error())
	}

	timeToStartNano, err := tasks.DeserializeTime(args.TimeToStart)
	if err != nil {
		return d.replyError(envelope, tasks.InvalidTask, err.Error())
	}

	row := store.Task{
		ID:          envelope.ID,
		Client:      envelope.Client,
		Status:      store.StatusWaiting,
		TimeToStart: time.Unix(0, timeToStartNano),
		Task:        args.Function,
		TaskArgs:    args.Args,
		TaskKwargs:  args.Kwargs,
		Lifetime:    args.Lifetime,
		Hard:        args.Hard,
	}
	if row.Lifetime < 1 {
		return d.replyError(envelope, tasks.InvalidTask, "lifetime must be >= 1")
	}

	if err := d.sink.SubmitTask(ctx, row); err != nil {
		return d.replyError(envelope, tasks.InvalidTask, err.Error())
	}
	return nil
}

func (d *Dispatcher) replyError(envelope tasks.Envelope, code tasks.ErrorCode, message string) error {
	reply, err := tasks.NewError(envelope.ID, envelope.Client, code, message)
	if err != nil {
		return err
	}
	return d.reply.Publish(reply)
}
