package cms

import (
	"context"
	"errors"
	"sync"

	"code.hybscloud.com/lfq"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/cms/cellpool"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// Message queue pool geometry.
const (
	msgMainPrimary     = 32768
	msgMainSecondary   = 4096
	msgFallbackPrimary = 16384

	// msgQueueCapacity covers every cell of both pools.
	msgQueueCapacity = 1 << 16

	// msgPrintLimit clamps a printed message.
	msgPrintLimit = format.LogParmMessageSize
)

var (
	msgMainHeader     = cellpool.MakeHeader("ZWESCMSMSGMCELLPOOL")
	msgFallbackHeader = cellpool.MakeHeader("ZWESCMSMSGFCELLPOOL")
)

// msgElement is one queued LOG message: a cell holding a copy of the log
// service parameter and the pool it came from.
type msgElement struct {
	cell []byte
	pool *cellpool.Pool
}

// msgQueue defers LOG service messages to the main loop. Callers on any
// goroutine produce; the main loop and the FLUSH command consume. Both sides
// of the ring are serialized by their own mutex.
type msgQueue struct {
	main     *cellpool.Pool
	fallback *cellpool.Pool

	prodMu sync.Mutex
	consMu sync.Mutex
	ring   lfq.SPSC[msgElement]
}

func newMsgQueue() (*msgQueue, error) {
	cellSize := uint32(format.Align8(format.LogParmSize))
	main, err := cellpool.Build(msgMainPrimary, msgMainSecondary, cellSize, 132, types.ServerKey, msgMainHeader)
	if err != nil {
		return nil, types.ErrMsgQueueNotCreated.Wrap(err)
	}
	fallback, err := cellpool.Build(msgFallbackPrimary, 0, cellSize, 132, types.ServerKey, msgFallbackHeader)
	if err != nil {
		_ = main.Delete()
		return nil, types.ErrMsgQueueNotCreated.Wrap(err)
	}
	q := &msgQueue{main: main, fallback: fallback}
	q.ring.Init(msgQueueCapacity)
	return q, nil
}

// allocate takes a cell from the main pool, then from the fallback pool.
// Neither pool is waited on, whatever the caller's environment.
func (q *msgQueue) allocate(ctx context.Context) (msgElement, error) {
	cell, err := q.main.Get(ctx, true)
	if err == nil {
		return msgElement{cell: cell, pool: q.main}, nil
	}
	cell, err = q.fallback.Get(ctx, true)
	if err == nil {
		return msgElement{cell: cell, pool: q.fallback}, nil
	}
	return msgElement{}, types.ErrNoStorageForMsg.Wrap(err)
}

func (q *msgQueue) enqueue(e msgElement) error {
	q.prodMu.Lock()
	err := q.ring.Enqueue(&e)
	q.prodMu.Unlock()
	return err
}

// flush drains the queue, printing each message when the CMSPC component
// is at INFO or above, and stops early once termination has started.
func (q *msgQueue) flush(terminating func() bool) int {
	q.consMu.Lock()
	defer q.consMu.Unlock()

	n := 0
	for {
		e, err := q.ring.Dequeue()
		if err != nil {
			return n
		}
		n++
		if !format.IsLogParm(e.cell) {
			logger.CMS.Log(logger.LevelSevere, "message queue element has invalid eyecatcher",
				"pool", e.pool.Header().String())
			logger.Dump(logger.CMS, logger.LevelSevere, "message queue element", e.cell)
		} else if logger.CMSPC.ShouldTrace(logger.LevelInfo) {
			msg := format.LogParmMessage(e.cell)
			if len(msg) > msgPrintLimit {
				msg = msg[:msgPrintLimit]
			}
			logger.Printf("%s\n", msg)
		}
		if err := e.pool.Free(e.cell); err != nil {
			logger.CMS.Log(logger.LevelSevere, "message queue element not freed", "err", err)
		}
		if terminating() {
			return n
		}
	}
}

func (q *msgQueue) close() error {
	q.flush(func() bool { return false })
	return errors.Join(q.main.Delete(), q.fallback.Delete())
}

// pending returns the number of cells in use by queued messages.
func (q *msgQueue) pending() int64 {
	return int64(q.main.Stats().InUse) + int64(q.fallback.Stats().InUse)
}

// logMessage is the LOG service: copy the caller's parameter into a queue
// cell and enqueue it for the main loop.
func (s *Server) logMessage(ctx context.Context, data []byte) types.Status {
	if data == nil {
		return types.StatusStdSvcParmNull
	}
	var local [format.LogParmSize]byte
	copy(local[:], data)
	if !format.MatchEyecatcher(local[:], 0, format.LogParmEyecatcher) {
		return types.StatusStdSvcParmBadEyecatcher
	}

	e, err := s.allocateMsgElement(ctx)
	if err != nil {
		return types.StatusOf(err)
	}
	copy(e.cell, local[:])
	if err := s.queue.enqueue(e); err != nil {
		_ = e.pool.Free(e.cell)
		return types.StatusNoStorageForMsg
	}
	return types.StatusOK
}

// allocateMsgElement runs the allocation under its own recovery state so a
// fault in the pool code fails the message, not the call.
func (s *Server) allocateMsgElement(ctx context.Context) (msgElement, error) {
	var e msgElement
	var allocErr error
	out, err := pushRecovery(ctx, "ABEND in CPOOL GET for msg queue element", func(ctx context.Context) error {
		e, allocErr = s.queue.allocate(ctx)
		return nil
	})
	switch {
	case err != nil:
		return msgElement{}, types.ErrNoStorageForMsg.Wrap(err)
	case out.Retried():
		return msgElement{}, types.ErrNoStorageForMsg.Wrap(out.Fault)
	case allocErr != nil:
		return msgElement{}, allocErr
	}
	return e, nil
}

// Flush delivers the queued LOG messages now.
func (s *Server) Flush() int {
	return s.queue.flush(func() bool { return s.HasFlags(area.ServerTermStarted) })
}
