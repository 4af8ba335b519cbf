package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/bigchat/internal/events"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/prom"
	"github.com/nimasrn/bigchat/pkg/worker"
)

type OwnerLookup interface {
	OwnerOf(ctx context.Context, id string) (string, error)
}

type DispatcherOption struct {
	Workers       int
	BufferSize    int
	LookupTimeout time.Duration
}

var DefaultDispatcherOption = DispatcherOption{
	Workers:       8,
	BufferSize:    1024,
	LookupTimeout: 3 * time.Second,
}

// Dispatcher turns committed message events from the stream into
// real-time notifications. The stream handler only claims and queues; the
// worker pool does the broadcasting.
type Dispatcher struct {
	hub     *Hub
	owners  OwnerLookup
	guard   *IdempotencyGuard
	workers *worker.WorkerManager
	option  DispatcherOption
	log     *logger.ZapLogger
}

func NewDispatcher(hub *Hub, owners OwnerLookup, guard *IdempotencyGuard, option DispatcherOption) *Dispatcher {
	if option.Workers <= 0 {
		option.Workers = DefaultDispatcherOption.Workers
	}
	if option.BufferSize <= 0 {
		option.BufferSize = DefaultDispatcherOption.BufferSize
	}
	if option.LookupTimeout <= 0 {
		option.LookupTimeout = DefaultDispatcherOption.LookupTimeout
	}
	d := &Dispatcher{
		hub:     hub,
		owners:  owners,
		guard:   guard,
		workers: worker.NewWorkerManager(option.BufferSize, option.Workers),
		option:  option,
		log:     logger.Named("dispatcher"),
	}
	d.workers.SetWorker(d.work)
	return d
}

// Start runs the worker pool until ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		if err := d.workers.Start(ctx); err != nil && !errors.Is(err, worker.ErrStopped) {
			d.log.Error("dispatcher workers exited", "error", err)
		}
	}()
}

func (d *Dispatcher) Stop() {
	d.workers.Stop()
}

// Handle is the events.Handler for the message stream.
func (d *Dispatcher) Handle(ctx context.Context, delivery *events.Delivery) error {
	evt := delivery.Event
	if evt == nil || evt.Message == nil {
		return fmt.Errorf("stream entry %s has no message", delivery.ID)
	}

	if d.guard != nil {
		first, err := d.guard.Claim(ctx, evt.Message.ID)
		if err == nil && !first {
			return nil
		}
	}

	if err := d.workers.Enqueue(ctx, evt); err != nil {
		if d.guard != nil {
			_ = d.guard.Release(context.Background(), evt.Message.ID)
		}
		return fmt.Errorf("enqueue broadcast: %w", err)
	}
	return nil
}

func (d *Dispatcher) work(_ int, job any) {
	evt, ok := job.(*model.MessageEvent)
	if !ok {
		return
	}
	start := time.Now()
	d.Broadcast(evt)
	prom.RelayDispatchDuration(time.Since(start).Seconds())
}

// Broadcast announces a committed message: new_message to the conversation
// room, then client_message to staff or admin_message to the owning client.
func (d *Dispatcher) Broadcast(evt *model.MessageEvent) {
	msg := model.RealtimeFromMessage(evt.Message)
	d.hub.Emit(ConversationRoom(msg.ConversationID), model.EventNewMessage, msg)

	if msg.SentBy.Type == model.SenderClient {
		out := *msg
		out.ClientID = msg.SentBy.ID
		d.hub.Emit(RoomAdmin, model.EventClientMessage, &out)
		return
	}

	owner := evt.ClientID
	if owner == "" {
		ctx, cancel := context.WithTimeout(context.Background(), d.option.LookupTimeout)
		defer cancel()
		var err error
		owner, err = d.owners.OwnerOf(ctx, msg.ConversationID)
		if err != nil {
			prom.RelayDeliveryFailure("owner_lookup")
			d.log.Warn("dispatcher could not route admin message",
				"message_id", msg.ID,
				"conversation_id", msg.ConversationID,
				"error", fmt.Errorf("%w: %w", ErrTransientDelivery, err))
			return
		}
	}
	out := *msg
	out.AdminID = msg.SentBy.ID
	d.hub.Emit(ClientRoom(owner), model.EventAdminMessage, &out)
}
