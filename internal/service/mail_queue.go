package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	QueueDefault     = "default"
	TaskTypeSendMail = "mail:send"

	enqueueTimeout = 5 * time.Second
)

func NewSendMailTask(m Mail) (*asynq.Task, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeSendMail, data, asynq.MaxRetry(5), asynq.Timeout(sendTimeout)), nil
}

// HandleSendMail returns the worker side of TaskTypeSendMail
func HandleSendMail(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var m Mail
		if err := json.Unmarshal(t.Payload(), &m); err != nil {
			return fmt.Errorf("bad mail payload, %w", asynq.SkipRetry)
		}

		if m.To == "" {
			return fmt.Errorf("mail without recipient, %w", asynq.SkipRetry)
		}

		return mailer.Send(ctx, m)
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher pushes mails onto a Redis backed queue that a separate
// worker process drains. It's picked over AsyncDispatcher when mail.queue.enabled
// is set, so pending mails survive restarts and get retried.
type QueueDispatcher struct {
	client enqueuer
	closer func() error
	wg     sync.WaitGroup
}

func NewQueueDispatcher(opt asynq.RedisClientOpt) *QueueDispatcher {
	client := asynq.NewClient(opt)

	return &QueueDispatcher{
		client: client,
		closer: client.Close,
	}
}

func (d *QueueDispatcher) Dispatch(m Mail) {
	task, err := NewSendMailTask(m)
	if err != nil {
		zap.L().Error("Failed to build mail task", zap.String("to", m.To), zap.Error(err))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()

		info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
		if err != nil {
			zap.L().Error("Failed to enqueue mail", zap.String("to", m.To), zap.Error(err))
			return
		}

		zap.L().Debug("Mail enqueued", zap.String("to", m.To), zap.String("taskID", info.ID))
	}()
}

// Close waits for in-flight enqueues before closing the Redis client
func (d *QueueDispatcher) Close() error {
	d.wg.Wait()

	if d.closer == nil {
		return nil
	}

	return d.closer()
}

// MailWorker drains the mail queue
type MailWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewMailWorker(opt asynq.RedisClientOpt, mailer Mailer) *MailWorker {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSendMail, HandleSendMail(mailer))

	return &MailWorker{server: srv, mux: mux}
}

// Run processes mail tasks until ctx is cancelled
func (w *MailWorker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("mail worker not configured")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
