package features

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	rabbit "malasakit/pkg/rabbit/pkg"
)

const publishTimeout = 5 * time.Second

// EventWorkerPool publishes recording events off the request path.
type EventWorkerPool struct {
	jobQueue        chan RecordingAttached
	workerCount     int
	maxTaskWaitTime time.Duration
	publisher       rabbit.Rabbit
	logger          *zap.Logger
	wg              sync.WaitGroup
	stopped         atomic.Bool
	// Metrics
	totalJobsEnqueued  int64
	totalJobsProcessed int64
	totalJobsFailed    int64
	totalJobsDropped   int64
	activeWorkers      int64
}

func NewEventWorkerPool(publisher rabbit.Rabbit, logger *zap.Logger, size, maxTasksPerWorker int, maxTaskWaitTime time.Duration) *EventWorkerPool {
	if size <= 0 {
		size = 1
	}
	if maxTasksPerWorker <= 0 {
		maxTasksPerWorker = 16
	}
	return &EventWorkerPool{
		jobQueue:        make(chan RecordingAttached, size*maxTasksPerWorker),
		workerCount:     size,
		maxTaskWaitTime: maxTaskWaitTime,
		publisher:       publisher,
		logger:          logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and the queue has
// been drained.
func (wp *EventWorkerPool) Run(ctx context.Context) error {
	wp.logger.Info("Starting event worker pool",
		zap.Int("workerCount", wp.workerCount),
		zap.Int("queueCapacity", cap(wp.jobQueue)))

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
	<-ctx.Done()
	wp.stopped.Store(true)
	wp.wg.Wait()
	return nil
}

func (wp *EventWorkerPool) worker(ctx context.Context, workerID int) {
	defer wp.wg.Done()
	atomic.AddInt64(&wp.activeWorkers, 1)
	defer atomic.AddInt64(&wp.activeWorkers, -1)

	jobsProcessed := 0
	for {
		select {
		case job := <-wp.jobQueue:
			wp.process(workerID, job)
			jobsProcessed++

		case <-ctx.Done():
			for {
				select {
				case job := <-wp.jobQueue:
					wp.process(workerID, job)
					jobsProcessed++
				default:
					wp.logger.Info("Worker stopping - context cancelled",
						zap.Int("workerID", workerID),
						zap.Int("jobsProcessed", jobsProcessed))
					return
				}
			}
		}
	}
}

func (wp *EventWorkerPool) process(workerID int, job RecordingAttached) {
	waitTime := time.Since(job.EnqueuedAt)
	log := wp.logger.With(
		zap.Int("workerID", workerID),
		zap.Int64("responseId", job.ResponseID))

	body, err := job.Payload()
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = wp.publisher.Publish(ctx, body)
		cancel()
	}
	if err != nil {
		atomic.AddInt64(&wp.totalJobsFailed, 1)
		log.Error("Failed to publish recording event", zap.Error(err))
		return
	}

	atomic.AddInt64(&wp.totalJobsProcessed, 1)
	log.Debug("Published recording event",
		zap.Duration("waitTime", waitTime),
		zap.Duration("totalTime", time.Since(job.EnqueuedAt)))
}

// EnqueueJob queues job, waiting at most maxTaskWaitTime for room. It reports
// whether the job was accepted.
func (wp *EventWorkerPool) EnqueueJob(logger *zap.Logger, job RecordingAttached) bool {
	if wp.stopped.Load() {
		atomic.AddInt64(&wp.totalJobsDropped, 1)
		logger.Warn("Worker pool stopped, dropping event", zap.Int64("responseId", job.ResponseID))
		return false
	}
	job.EnqueuedAt = time.Now()

	select {
	case wp.jobQueue <- job:
		atomic.AddInt64(&wp.totalJobsEnqueued, 1)
		return true
	default:
	}

	timer := time.NewTimer(wp.maxTaskWaitTime)
	defer timer.Stop()
	select {
	case wp.jobQueue <- job:
		atomic.AddInt64(&wp.totalJobsEnqueued, 1)
		return true
	case <-timer.C:
		atomic.AddInt64(&wp.totalJobsDropped, 1)
		logger.Warn("Event queue is full, dropping event",
			zap.Int64("responseId", job.ResponseID),
			zap.Int("queueSize", len(wp.jobQueue)),
			zap.Int("queueCapacity", cap(wp.jobQueue)),
			zap.Int64("activeWorkers", atomic.LoadInt64(&wp.activeWorkers)))
		return false
	}
}

// GetMetrics returns worker pool metrics
func (wp *EventWorkerPool) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"total_jobs_enqueued":  atomic.LoadInt64(&wp.totalJobsEnqueued),
		"total_jobs_processed": atomic.LoadInt64(&wp.totalJobsProcessed),
		"total_jobs_failed":    atomic.LoadInt64(&wp.totalJobsFailed),
		"total_jobs_dropped":   atomic.LoadInt64(&wp.totalJobsDropped),
		"active_workers":       atomic.LoadInt64(&wp.activeWorkers),
		"queue_size":           len(wp.jobQueue),
		"queue_capacity":       cap(wp.jobQueue),
	}
}
