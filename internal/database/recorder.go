package database

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbehnke/backscatter/internal/scheduler"
)

const (
	RECORDER_QUEUE_SIZE     = 1024
	RECORDER_FLUSH_SIZE     = 200
	RECORDER_FLUSH_INTERVAL = time.Second
)

// Recorder logs transmissions of one run. OnTransmit never touches the
// database: records are queued and written in batches by a background
// goroutine so the transmit loop keeps its cadence. When the queue is full
// records are dropped and counted.
type Recorder struct {
	runID  string
	repo   *TransmissionRepository
	logger *log.Logger

	queue chan Transmission
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.Mutex
	dropped uint64
	written uint64
}

// NewRecorder starts a recorder for a fresh run ID
func NewRecorder(repo *TransmissionRepository, logger *log.Logger) *Recorder {
	r := &Recorder{
		runID:  uuid.New().String(),
		repo:   repo,
		logger: logger,
		queue:  make(chan Transmission, RECORDER_QUEUE_SIZE),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// RunID returns the run identifier stamped on every record
func (r *Recorder) RunID() string {
	return r.runID
}

// OnTransmit queues a transmission
func (r *Recorder) OnTransmit(tx scheduler.Transmission) {
	rec := Transmission{
		RunID:     r.runID,
		Seq:       tx.Seq,
		Mode:      tx.Mode.String(),
		PacketLen: tx.PacketLen,
		Words:     tx.Words,
		SentAt:    tx.SentAt,
	}

	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Stats returns the number of records written and dropped
func (r *Recorder) Stats() (written, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}

// Close flushes queued records, stops the writer and checks the stored
// count against what was written
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()

	written, dropped := r.Stats()
	if r.logger != nil {
		r.logger.Printf("Run %s: %d transmissions logged, %d dropped", r.runID, written, dropped)
	}

	stored, err := r.repo.CountByRun(r.runID)
	if err != nil {
		return err
	}
	if uint64(stored) != written {
		return fmt.Errorf("run %s: %d transmissions written, %d stored", r.runID, written, stored)
	}
	return nil
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(RECORDER_FLUSH_INTERVAL)
	defer ticker.Stop()

	batch := make([]Transmission, 0, RECORDER_FLUSH_SIZE)

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= RECORDER_FLUSH_SIZE {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.done:
			// Drain what the loop queued before Close
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []Transmission) []Transmission {
	if len(batch) == 0 {
		return batch
	}

	if err := r.repo.RecordBatch(batch); err != nil {
		if r.logger != nil {
			r.logger.Printf("Failed to log %d transmissions: %v", len(batch), err)
		}
		r.mu.Lock()
		r.dropped += uint64(len(batch))
		r.mu.Unlock()
	} else {
		r.mu.Lock()
		r.written += uint64(len(batch))
		r.mu.Unlock()
	}

	return batch[:0]
}
