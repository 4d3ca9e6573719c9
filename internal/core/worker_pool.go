package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job 任务接口
type Job interface {
	ID() string
	Run(ctx context.Context) error
}

// WorkerPool 工作池：文件级任务并行执行，彼此无共享可变状态
type WorkerPool struct {
	jobCh   chan Job
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   PoolStats
}

// PoolStats 工作池统计信息
type PoolStats struct {
	JobsSubmitted   int64         `json:"jobs_submitted"`
	JobsCompleted   int64         `json:"jobs_completed"`
	JobsFailed      int64         `json:"jobs_failed"`
	TotalExecTimeNs int64         `json:"total_exec_time_ns"`
	AvgExecTime     time.Duration `json:"avg_exec_time"`
}

// NewWorkerPool 创建工作池
func NewWorkerPool(ctx context.Context, workers int, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		jobCh:   make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start 启动工作池
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// worker 工作协程
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobCh:
			if !ok {
				return
			}
			startTime := time.Now()
			err := job.Run(wp.ctx)
			execTime := time.Since(startTime)

			atomic.AddInt64(&wp.stats.JobsCompleted, 1)
			atomic.AddInt64(&wp.stats.TotalExecTimeNs, int64(execTime))
			if err != nil {
				atomic.AddInt64(&wp.stats.JobsFailed, 1)
			}

		case <-wp.ctx.Done():
			return
		}
	}
}

// Submit 提交任务；取消后返回 ctx 错误
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobCh <- job:
		atomic.AddInt64(&wp.stats.JobsSubmitted, 1)
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Wait 关闭任务队列并等待在途任务结束
func (wp *WorkerPool) Wait() {
	close(wp.jobCh)
	wp.wg.Wait()
}

// Stop 取消全部任务并等待 worker 退出
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// GetStats 获取统计信息快照
func (wp *WorkerPool) GetStats() PoolStats {
	stats := PoolStats{
		JobsSubmitted:   atomic.LoadInt64(&wp.stats.JobsSubmitted),
		JobsCompleted:   atomic.LoadInt64(&wp.stats.JobsCompleted),
		JobsFailed:      atomic.LoadInt64(&wp.stats.JobsFailed),
		TotalExecTimeNs: atomic.LoadInt64(&wp.stats.TotalExecTimeNs),
	}
	if stats.JobsCompleted > 0 {
		stats.AvgExecTime = time.Duration(stats.TotalExecTimeNs / stats.JobsCompleted)
	}
	return stats
}
