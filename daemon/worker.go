package daemon

import (
	"context"
	"time"

	"github.com/Luismorlan/beautyland/model"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PostSaver is the ingestion path into the post repository.
type PostSaver interface {
	Save(ctx context.Context, post *model.Post) (bool, error)
}

type WorkerConfig struct {
	Name string
}

// Worker is the engine module on the daemon side of the bus: it consumes
// commands, harvests the requested page and saves every new post.
type Worker struct {
	config     WorkerConfig
	subscriber message.Subscriber
	harvester  Harvester
	saver      PostSaver
	now        func() time.Time
	log        *logrus.Entry
}

func NewWorker(config WorkerConfig, subscriber message.Subscriber, harvester Harvester, saver PostSaver) *Worker {
	return &Worker{
		config:     config,
		subscriber: subscriber,
		harvester:  harvester,
		saver:      saver,
		now:        time.Now,
		log:        Logger.Named(config.Name),
	}
}

func (w *Worker) Name() string {
	return w.config.Name
}

func (w *Worker) RunModule(ctx context.Context) error {
	msgs, err := w.subscriber.Subscribe(ctx, TOPIC_DAEMON_COMMAND)
	if err != nil {
		return errors.Wrap(err, "fail to subscribe daemon commands")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			w.processMessage(ctx, msg)
		}
	}
}

func (w *Worker) Shutdown() {
	if err := w.subscriber.Close(); err != nil {
		w.log.WithError(err).Warn("fail to close subscriber")
	}
}

// processMessage always acks: a command that can't be carried out is logged
// and dropped, the daemon is asked again by the next build request.
func (w *Worker) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	cmd, err := DecodeCommand(msg.Payload)
	if err != nil {
		w.log.WithError(err).Errorf("drop message %s", msg.UUID)
		return
	}
	saved, err := w.Handle(ctx, cmd)
	if err != nil {
		w.log.WithError(err).Errorf("fail to handle command %s %s", cmd.Cmd, cmd.URL)
		return
	}
	w.log.Infof("command %s %s finished, %d new posts", cmd.Cmd, cmd.URL, saved)
}

// Handle carries out one command and returns the number of posts saved.
// Duplicates are skipped silently; the first failing save aborts the command.
func (w *Worker) Handle(ctx context.Context, cmd Command) (int, error) {
	if cmd.Cmd != CmdBuildPosts {
		return 0, errors.Errorf("unknown daemon command %q", cmd.Cmd)
	}
	crawled, err := w.harvester.Harvest(ctx, cmd.URL)
	if err != nil {
		return 0, errors.Wrapf(err, "fail to harvest %s", cmd.URL)
	}

	saved := 0
	for _, c := range crawled {
		post, err := ToPost(c, w.now())
		if err != nil {
			return saved, err
		}
		ok, err := w.saver.Save(ctx, post)
		if err != nil {
			return saved, errors.Wrapf(err, "fail to save post %s", post.PostId)
		}
		if ok {
			saved++
		}
	}
	return saved, nil
}
