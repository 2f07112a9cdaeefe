package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmnotes/vmt-engine/internal/metrics"
	"github.com/vmnotes/vmt-engine/internal/platform"
)

// Source is the submission path a job was created through. It governs
// delivery style: interactive sources carry a Responder for deferred replies.
type Source int

const (
	SourceAutomatic Source = iota
	SourceCommand
	SourceContextAction
)

func (s Source) String() string {
	switch s {
	case SourceAutomatic:
		return "automatic"
	case SourceCommand:
		return "command"
	case SourceContextAction:
		return "context_action"
	default:
		return "unknown"
	}
}

// processingEmoji marks a message while its automatic job is queued or running.
const processingEmoji = "⌛" // hourglass

// Enqueue outcomes. A duplicate is not a failure: the invariant is simply
// that a message id never has two concurrent jobs.
var (
	ErrDuplicate = errors.New("queue: message already in flight")
	ErrQueueFull = errors.New("queue: transcription queue is full")
	ErrStopped   = errors.New("queue: queue is stopped")
)

// Job is one unit of transcription work. Immutable after creation and never
// persisted; a crash loses the queue by design.
type Job struct {
	Source    Source
	Message   *platform.Message
	Requester *platform.Author   // nil for automatic jobs
	Responder platform.Responder // nil for automatic jobs
	// RemoveReaction clears the processing indicator when the job finishes.
	RemoveReaction bool
}

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// QueueOptions configures the job queue.
type QueueOptions struct {
	Client    platform.Client
	Engine    *Engine
	QueueSize int
	ScanLimit int // history scan window for command submissions
	Log       zerolog.Logger
}

// Queue is the ordered, deduplicated, single-consumer job pipeline. Producers
// only ever perform the mutex-guarded check-and-append in Enqueue; exactly one
// worker goroutine consumes, so all access to the shared model is serialized.
type Queue struct {
	client    platform.Client
	engine    *Engine
	scanLimit int
	log       zerolog.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
	stopped  bool
	jobs     chan Job

	wg        sync.WaitGroup
	completed atomic.Int64
	failed    atomic.Int64
}

// NewQueue creates the job queue. Call Start to launch the worker.
func NewQueue(opts QueueOptions) *Queue {
	size := opts.QueueSize
	if size <= 0 {
		size = 64
	}
	scan := opts.ScanLimit
	if scan <= 0 {
		scan = DefaultScanLimit
	}
	return &Queue{
		client:    opts.Client,
		engine:    opts.Engine,
		scanLimit: scan,
		log:       opts.Log,
		inflight:  make(map[int64]struct{}),
		jobs:      make(chan Job, size),
	}
}

// Start launches the single worker goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Info().Int("queue_size", cap(q.jobs)).Msg("transcription queue started")
}

// Stop closes the queue, drains remaining jobs and waits for the worker.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info().
		Int64("completed", q.completed.Load()).
		Int64("failed", q.failed.Load()).
		Msg("transcription queue stopped")
}

// Stopped reports whether the queue no longer accepts jobs.
func (q *Queue) Stopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

// Stats returns current queue statistics.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.jobs),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Enqueue adds a job unless its message is already in flight. The in-flight
// check and the append happen under one lock so concurrent producers cannot
// interleave between them. Returns the 1-based queue position. Never blocks.
func (q *Queue) Enqueue(job Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return 0, ErrStopped
	}
	if _, dup := q.inflight[job.Message.ID]; dup {
		metrics.JobsDuplicateTotal.Inc()
		return 0, ErrDuplicate
	}

	select {
	case q.jobs <- job:
		q.inflight[job.Message.ID] = struct{}{}
		pos := len(q.jobs)
		metrics.JobsSubmittedTotal.WithLabelValues(job.Source.String()).Inc()
		metrics.QueueDepth.Set(float64(pos))
		q.log.Debug().
			Int64("message_id", job.Message.ID).
			Str("source", job.Source.String()).
			Int("position", pos).
			Msg("job enqueued")
		return pos, nil
	default:
		return 0, ErrQueueFull
	}
}

// worker pulls jobs strictly in FIFO order and processes one end-to-end at a
// time. It survives any single job's failure.
func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.runJob(job)
	}
}

func (q *Queue) runJob(job Job) {
	ctx := context.Background() // no cancellation once a job is in flight
	msgID := job.Message.ID
	metrics.QueueDepth.Set(float64(len(q.jobs)))

	q.mu.Lock()
	_, marked := q.inflight[msgID]
	q.mu.Unlock()
	if !marked {
		// Enqueue marks before append, so this should be unreachable.
		q.log.Warn().Int64("message_id", msgID).Msg("dequeued job missing in-flight marker")
	}

	err := q.process(ctx, job)
	if err != nil {
		q.failed.Add(1)
		metrics.JobsFailedTotal.Inc()
		q.log.Warn().Err(err).
			Int64("message_id", msgID).
			Str("source", job.Source.String()).
			Msg("transcription job failed")
		q.notifyFailure(ctx, job)
	} else {
		q.completed.Add(1)
		metrics.JobsCompletedTotal.Inc()
	}

	// Full lifecycle done — release the id so a later submission can retry.
	q.mu.Lock()
	delete(q.inflight, msgID)
	q.mu.Unlock()

	if job.RemoveReaction {
		if rerr := q.client.RemoveReaction(ctx, job.Message, processingEmoji); rerr != nil {
			q.log.Debug().Err(rerr).Int64("message_id", msgID).Msg("failed to clear processing reaction")
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) error {
	start := time.Now()
	res, err := q.engine.Transcribe(ctx, job.Message)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	elapsed := time.Since(start)
	metrics.TranscribeDuration.Observe(elapsed.Seconds())

	rendered := Render(res, job.Message, job.Requester, elapsed)
	return q.deliver(ctx, job, rendered)
}

// deliver posts the transcript under the source message. When the primary
// reply is refused for permission reasons and the job has a deferred response
// channel, the content is delivered there instead.
func (q *Queue) deliver(ctx context.Context, job Job, rendered Rendered) error {
	err := q.client.Reply(ctx, job.Message, rendered.Content, rendered.File)
	if err == nil {
		if job.Responder != nil {
			if ferr := job.Responder.Followup(ctx, "Transcription posted under the original voice message.", nil); ferr != nil {
				q.log.Debug().Err(ferr).Msg("followup ack failed")
			}
		}
		return nil
	}

	if errors.Is(err, platform.ErrForbidden) && job.Responder != nil {
		if ferr := job.Responder.Followup(ctx, rendered.Content, rendered.File); ferr != nil {
			return fmt.Errorf("fallback delivery: %w", ferr)
		}
		return nil
	}
	return fmt.Errorf("deliver reply: %w", err)
}

// notifyFailure sends a best-effort failure notice: the deferred response
// channel when available, otherwise a plain reply that itself tolerates
// failure.
func (q *Queue) notifyFailure(ctx context.Context, job Job) {
	notice := fmt.Sprintf("Could not transcribe the voice message from %s.", job.Message.Author.Name)
	if job.Responder != nil {
		if err := job.Responder.FollowupEphemeral(ctx, notice); err == nil {
			return
		}
	}
	if err := q.client.Reply(ctx, job.Message, notice, nil); err != nil {
		q.log.Debug().Err(err).Int64("message_id", job.Message.ID).Msg("failure notice undeliverable")
	}
}

// SubmitAutomatic ingests a freshly observed message. Non-transcribable
// messages and the bot's own are ignored. A processing reaction is set only
// after a successful enqueue so a dropped duplicate never strands one.
func (q *Queue) SubmitAutomatic(ctx context.Context, msg *platform.Message) {
	if !platform.IsTranscribable(msg) {
		return
	}
	if msg.Author.Bot || msg.Author.ID == q.client.SelfID() {
		return
	}

	_, err := q.Enqueue(Job{
		Source:         SourceAutomatic,
		Message:        msg,
		RemoveReaction: true,
	})
	switch {
	case errors.Is(err, ErrDuplicate):
		// Silently dropped; the first job owns this message.
	case err != nil:
		q.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("automatic submission rejected")
	default:
		if rerr := q.client.AddReaction(ctx, msg, processingEmoji); rerr != nil {
			q.log.Debug().Err(rerr).Int64("message_id", msg.ID).Msg("failed to add processing reaction")
		}
	}
}

// SubmitFromCommand handles a slash-command submission: resolve the optional
// target (deep link, bare id, or recent-history scan), validate it, and
// enqueue. All feedback flows through the deferred response channel.
func (q *Queue) SubmitFromCommand(ctx context.Context, inv Invocation, target string, requester *platform.Author, responder platform.Responder) {
	msg, status := ResolveTarget(ctx, q.client, inv, target, q.scanLimit)
	switch status {
	case StatusFound:
		// fall through to enqueue
	case StatusNotTranscribable:
		q.sendFollowup(ctx, responder, "Provided message is not a voice message.")
		return
	case StatusNoPermission:
		q.sendFollowup(ctx, responder, "No voice message found. Grant 'Read Message History' or provide a message link/ID.")
		return
	default:
		q.sendFollowup(ctx, responder, "No voice message found. Provide a message link/ID or grant 'Read Message History'.")
		return
	}

	q.enqueueInteractive(ctx, Job{
		Source:    SourceCommand,
		Message:   msg,
		Requester: requester,
		Responder: responder,
	})
}

// SubmitFromContextAction handles a context-menu submission against an
// explicit message.
func (q *Queue) SubmitFromContextAction(ctx context.Context, msg *platform.Message, requester *platform.Author, responder platform.Responder) {
	if !platform.IsTranscribable(msg) {
		q.sendFollowup(ctx, responder, "Selected message is not a voice message.")
		return
	}
	q.enqueueInteractive(ctx, Job{
		Source:    SourceContextAction,
		Message:   msg,
		Requester: requester,
		Responder: responder,
	})
}

func (q *Queue) enqueueInteractive(ctx context.Context, job Job) {
	pos, err := q.Enqueue(job)
	switch {
	case errors.Is(err, ErrDuplicate):
		q.sendFollowup(ctx, job.Responder, "That message is already being transcribed.")
	case errors.Is(err, ErrQueueFull):
		q.sendFollowup(ctx, job.Responder, "The transcription queue is full right now, try again in a bit.")
	case err != nil:
		q.sendFollowup(ctx, job.Responder, "Transcription is unavailable right now.")
	default:
		q.sendFollowup(ctx, job.Responder, fmt.Sprintf("Queued for transcription (position %d).", pos))
	}
}

func (q *Queue) sendFollowup(ctx context.Context, responder platform.Responder, content string) {
	if responder == nil {
		return
	}
	if err := responder.Followup(ctx, content, nil); err != nil {
		q.log.Debug().Err(err).Msg("followup failed")
	}
}
