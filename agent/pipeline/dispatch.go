package pipeline

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/wrenhq/wren/agent/contract"
)

const DefaultQueueDepth = 64

type turnHandler interface {
	HandleTurn(ctx context.Context, req contractx.TurnRequest) (contractx.TurnReply, error)
}

type channelKey struct {
	guildID   string
	channelID string
}

type turnJob struct {
	ctx    context.Context
	req    contractx.TurnRequest
	result chan turnResult
}

type turnResult struct {
	reply contractx.TurnReply
	err   error
}

// Dispatcher serializes turns per (guild, channel) while distinct channels
// run fully in parallel. One worker goroutine per active channel; queue
// saturation rejects the turn rather than blocking the caller forever.
type Dispatcher struct {
	handler    turnHandler
	queueDepth int

	mu      sync.Mutex
	workers map[channelKey]chan turnJob
	closed  bool
	wg      sync.WaitGroup
}

func NewDispatcher(handler turnHandler, queueDepth int) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Dispatcher{
		handler:    handler,
		queueDepth: queueDepth,
		workers:    make(map[channelKey]chan turnJob),
	}
}

// Dispatch enqueues the turn on its channel's worker and waits for the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req contractx.TurnRequest) (contractx.TurnReply, error) {
	job := turnJob{ctx: ctx, req: req, result: make(chan turnResult, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return contractx.TurnReply{}, fmt.Errorf("%w: dispatcher is closed", contractx.ErrTransient)
	}
	key := channelKey{guildID: req.GuildID, channelID: req.ChannelID}
	queue, ok := d.workers[key]
	if !ok {
		queue = make(chan turnJob, d.queueDepth)
		d.workers[key] = queue
		d.wg.Add(1)
		go d.runWorker(queue)
	}

	select {
	case queue <- job:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		return contractx.TurnReply{}, fmt.Errorf("%w: channel queue is full", contractx.ErrTransient)
	}

	select {
	case result := <-job.result:
		return result.reply, result.err
	case <-ctx.Done():
		return contractx.TurnReply{}, fmt.Errorf("%w: turn canceled: %v", contractx.ErrTransient, ctx.Err())
	}
}

func (d *Dispatcher) runWorker(queue chan turnJob) {
	defer d.wg.Done()
	for job := range queue {
		reply, err := d.handler.HandleTurn(job.ctx, job.req)
		job.result <- turnResult{reply: reply, err: err}
	}
}

// Close stops accepting turns and waits for queued work to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, queue := range d.workers {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
