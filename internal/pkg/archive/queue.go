// Package archive persists completed turn transcripts to object storage.
// Archiving is best effort and fully asynchronous: the request path only
// enqueues, a small worker pool drains the Redis-backed queue, and any
// failure is logged without ever reaching the user.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/internal/pkg/cache"
	"github.com/parleyhq/parley/internal/pkg/env"
)

const (
	// Redis list key holding pending transcript jobs.
	QueueKey = "transcript_archive_queue"

	popTimeout = 5 * time.Second
)

// TranscriptJob is one completed turn awaiting archival.
type TranscriptJob struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	ThreadRef string    `json:"thread_ref"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// Writer stores one serialized transcript under a key.
type Writer interface {
	Write(ctx context.Context, key string, body []byte) error
}

// Enqueue queues a transcript for archival. Failures are logged and
// swallowed; the turn already succeeded.
func Enqueue(identity, threadRef, message, reply string) {
	if !Enabled() {
		return
	}
	job := TranscriptJob{
		ID:        uuid.NewString(),
		Identity:  identity,
		ThreadRef: threadRef,
		Message:   message,
		Reply:     reply,
		CreatedAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[Archive] failed to encode transcript job: %v", err)
		return
	}
	if err := cache.LPush(QueueKey, encoded); err != nil {
		log.Errorf("[Archive] failed to enqueue transcript job: %v", err)
	}
}

// Enabled reports whether transcript archiving is configured on.
func Enabled() bool {
	return env.GetEnv("TRANSCRIPT_ARCHIVE_ENABLED", "false") == "true"
}

// Worker drains the queue into a Writer.
type Worker struct {
	writer  Writer
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWorker creates a worker pool over the given writer.
func NewWorker(writer Writer, workers int) *Worker {
	if workers <= 0 {
		workers = 2
	}
	return &Worker{
		writer:  writer,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the pool. Idempotent while running.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	log.Infof("[Archive] started %d transcript archive workers", w.workers)
}

// Stop signals the pool and waits for in-flight uploads to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		values, err := cache.BRPop(popTimeout, QueueKey)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[Archive] queue pop failed: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		// BRPop returns [key, value].
		if len(values) < 2 {
			continue
		}
		w.process([]byte(values[1]))
	}
}

func (w *Worker) process(raw []byte) {
	var job TranscriptJob
	if err := json.Unmarshal(raw, &job); err != nil {
		log.Errorf("[Archive] dropping undecodable transcript job: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := "transcripts/" + job.Identity + "/" + job.CreatedAt.Format("2006/01/02") + "/" + job.ID + ".json"
	body, _ := json.Marshal(job)
	if err := w.writer.Write(ctx, key, body); err != nil {
		log.Errorf("[Archive] failed to archive transcript %s: %v", job.ID, err)
		return
	}
	log.Debugf("[Archive] archived transcript %s", key)
}
