// Package bridge exposes the service over NATS request/reply and publishes job
// events as JSON.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/script"
	"github.com/ivlev/scriptvideo/internal/service"
)

const (
	NatsConnectTimeout    = 10 * time.Second
	NatsMaxReconnects     = 5
	NatsReconnectWait     = 2 * time.Second
	defaultSubjectPrefix  = "scriptvideo"
	progressSubjectFormat = "%s.progress.%s"
)

// Connect dials the NATS server with the bridge's reconnect policy.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	logger = logging.NewComponentLogger(logger, "nats")
	nc, err := nats.Connect(
		url,
		nats.Name("scriptvideo"),
		nats.Timeout(NatsConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(NatsMaxReconnects),
		nats.ReconnectWait(NatsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", logging.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Service is the part of service.Service the bridge drives.
type Service interface {
	CreateVideo(ctx context.Context, req service.Request) (string, error)
	CreateFromFolder(ctx context.Context, req service.FolderRequest) (string, error)
	Cancel(id string) error
	Subscribe() (int, <-chan service.Event)
	Unsubscribe(id int)
}

type Bridge struct {
	nc     *nats.Conn
	svc    Service
	prefix string
	logger *slog.Logger

	mu    sync.Mutex
	subs  []*nats.Subscription
	subID int
	wg    sync.WaitGroup
}

func New(nc *nats.Conn, svc Service, prefix string, logger *slog.Logger) *Bridge {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &Bridge{
		nc:     nc,
		svc:    svc,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "bridge"),
	}
}

func (b *Bridge) CreateSubject() string { return b.prefix + ".create" }

func (b *Bridge) CancelSubject() string { return b.prefix + ".cancel" }

func (b *Bridge) ProgressSubject(jobID string) string {
	return fmt.Sprintf(progressSubjectFormat, b.prefix, jobID)
}

// Start subscribes to the request subjects and begins publishing events.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) > 0 {
		return errors.New("bridge already started")
	}

	create, err := b.nc.Subscribe(b.CreateSubject(), func(msg *nats.Msg) {
		b.respond(msg, b.handleCreate(ctx, msg.Data))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.CreateSubject(), err)
	}
	cancel, err := b.nc.Subscribe(b.CancelSubject(), func(msg *nats.Msg) {
		b.respond(msg, b.handleCancel(msg.Data))
	})
	if err != nil {
		_ = create.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", b.CancelSubject(), err)
	}
	b.subs = []*nats.Subscription{create, cancel}

	id, events := b.svc.Subscribe()
	b.subID = id
	b.wg.Add(1)
	go b.publishEvents(events)

	b.logger.Info("listening",
		logging.String("create", b.CreateSubject()),
		logging.String("cancel", b.CancelSubject()),
	)
	return b.nc.Flush()
}

// Run starts the bridge and blocks until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	b.Stop()
	return nil
}

// Stop removes the subscriptions and waits for the event publisher to drain.
func (b *Bridge) Stop() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribe", logging.String("subject", s.Subject), logging.Error(err))
		}
	}
	b.svc.Unsubscribe(b.subID)
	b.wg.Wait()
	if err := b.nc.Flush(); err != nil {
		b.logger.Debug("flush", logging.Error(err))
	}
}

func (b *Bridge) handleCreate(ctx context.Context, data []byte) Reply {
	var msg CreateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{Error: fmt.Sprintf("decode create request: %v", err)}
	}

	var (
		id  string
		err error
	)
	if msg.ImageDir != "" {
		id, err = b.svc.CreateFromFolder(ctx, service.FolderRequest{
			ImageDir:   msg.ImageDir,
			Scripts:    msg.Scripts,
			AudioPath:  msg.AudioPath,
			OutputPath: msg.OutputPath,
			Settings:   msg.Settings,
		})
	} else {
		instructions := msg.Instructions
		if instructions == nil && msg.Script != "" {
			instructions = script.Parse(msg.Script)
		}
		id, err = b.svc.CreateVideo(ctx, service.Request{
			Images:       msg.Images,
			Instructions: instructions,
			AudioPath:    msg.AudioPath,
			OutputPath:   msg.OutputPath,
			Settings:     msg.Settings,
		})
	}
	if err != nil {
		b.logger.Warn("create rejected", logging.Error(err))
		return Reply{Error: err.Error()}
	}
	return Reply{JobID: id}
}

func (b *Bridge) handleCancel(data []byte) Reply {
	var msg CancelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{Error: fmt.Sprintf("decode cancel request: %v", err)}
	}
	if err := b.svc.Cancel(msg.JobID); err != nil {
		return Reply{JobID: msg.JobID, Error: err.Error()}
	}
	return Reply{JobID: msg.JobID}
}

func (b *Bridge) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("encode reply", logging.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("send reply", logging.Error(err))
	}
}

func (b *Bridge) publishEvents(events <-chan service.Event) {
	defer b.wg.Done()
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			b.logger.Error("encode event", logging.JobID(ev.JobID), logging.Error(err))
			continue
		}
		if err := b.nc.Publish(b.ProgressSubject(ev.JobID), data); err != nil {
			b.logger.Warn("publish event", logging.JobID(ev.JobID), logging.Error(err))
		}
	}
}
