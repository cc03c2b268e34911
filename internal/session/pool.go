package session

import (
	"sync"

	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/recognition"
)

// Completion is one finished embedder job, delivered back in submission
// order.
type Completion struct {
	Frame      *recognition.Frame
	Detections []models.Detection
	Err        error
}

type job struct {
	seq   uint64
	frame *recognition.Frame
	apply func(Completion)
}

type result struct {
	seq   uint64
	comp  Completion
	apply func(Completion)
}

// Pool runs embedder work across a fixed set of workers while delivering
// completions strictly in submission order. Each worker owns its own
// encoder, since ONNX sessions are not reentrant. Ordering matters because
// blink detection reads a sequence of eye states: applying frame N+1's
// result before frame N's would corrupt the liveness state machine.
type Pool struct {
	jobs    chan job
	raw     chan result
	seqMu   sync.Mutex
	nextSeq uint64
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewPool starts one worker per encoder. Submit blocks when all workers are
// busy and the queue is full, which backpressures the frame consumer.
func NewPool(encoders []recognition.Embedder) *Pool {
	p := &Pool{
		jobs: make(chan job, len(encoders)),
		raw:  make(chan result, len(encoders)*2),
		done: make(chan struct{}),
	}

	for _, enc := range encoders {
		p.wg.Add(1)
		go p.worker(enc)
	}

	go func() {
		p.wg.Wait()
		close(p.raw)
	}()
	go p.reorder()

	return p
}

// Submit queues one frame. The apply callback runs on the pool's single
// delivery goroutine, in submission order across the whole pool, so
// per-session applies are serialized and ordered for free.
func (p *Pool) Submit(frame *recognition.Frame, apply func(Completion)) {
	p.seqMu.Lock()
	seq := p.nextSeq
	p.nextSeq++
	p.seqMu.Unlock()

	p.jobs <- job{seq: seq, frame: frame, apply: apply}
}

// Close stops accepting jobs and waits until every queued completion has
// been applied.
func (p *Pool) Close() {
	close(p.jobs)
	<-p.done
}

func (p *Pool) worker(enc recognition.Embedder) {
	defer p.wg.Done()
	for j := range p.jobs {
		dets, err := enc.DetectAndEncode(j.frame.Img)
		p.raw <- result{
			seq:   j.seq,
			comp:  Completion{Frame: j.frame, Detections: dets, Err: err},
			apply: j.apply,
		}
	}
}

// reorder buffers out-of-order worker results and applies them by sequence.
func (p *Pool) reorder() {
	defer close(p.done)

	pending := make(map[uint64]result)
	var next uint64

	for r := range p.raw {
		pending[r.seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			ready.apply(ready.comp)
			next++
		}
	}
}
