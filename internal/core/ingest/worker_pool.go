package ingest

import (
	"context"
	"runtime"
	"sync"
	"time"

	"trailmap-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// WorkerPool verteilt eingehende Ingest-Batches der Push-Quellen (MQTT) auf
// einen Pool von Worker-Goroutinen, damit ein langsamer Store den
// Nachrichtenempfang nicht blockiert. Die Konsistenz hängt nicht an der
// Reihenfolge: jede Zeile ist eine eigene Transaktion.
type WorkerPool struct {
	gateway         *Gateway
	jobs            chan *ingestJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
}

// ingestJob repräsentiert einen Ingest-Batch
type ingestJob struct {
	ctx      context.Context
	rows     []models.RawRow
	source   string
	resultCh chan *ingestResult // Individueller Ergebniskanal pro Job
}

// ingestResult enthält das Ergebnis eines Batches
type ingestResult struct {
	Report *models.IngestReport
	Err    error
}

// NewWorkerPool erstellt einen neuen Worker-Pool für Push-Ingest
func NewWorkerPool(gateway *Gateway) *WorkerPool {
	// Verwende 75% der verfügbaren CPUs, mindestens 2
	availableCPUs := runtime.NumCPU()
	workerCount := max(2, (availableCPUs*3)/4)

	log.Infof("Initializing ingest worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		gateway:     gateway,
		jobs:        make(chan *ingestJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}

	pool.startWorkers()

	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.Debugf("Ingest worker %d started", workerID)

			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						log.Debugf("Ingest worker %d shutting down (job channel closed)", workerID)
						return
					}

					p.activeJobsMutex.Lock()
					p.activeJobs++
					p.activeJobsMutex.Unlock()

					startTime := time.Now()
					report, err := p.gateway.Ingest(job.ctx, job.rows, job.source)

					p.activeJobsMutex.Lock()
					p.activeJobs--
					p.activeJobsMutex.Unlock()

					select {
					case job.resultCh <- &ingestResult{Report: report, Err: err}:
					default:
						log.Warnf("Ingest worker %d: could not send result, channel might be closed", workerID)
					}

					log.Debugf("Ingest worker %d completed batch of %d rows in %v",
						workerID, len(job.rows), time.Since(startTime))

				case <-p.shutdown:
					log.Debugf("Ingest worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// Submit reiht einen Batch ein und wartet auf den Report
func (p *WorkerPool) Submit(ctx context.Context, rows []models.RawRow, source string) (*models.IngestReport, error) {
	resultCh := make(chan *ingestResult, 1)

	job := &ingestJob{
		ctx:      ctx,
		rows:     rows,
		source:   source,
		resultCh: resultCh,
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-resultCh:
		return result.Report, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveJobCount gibt die Anzahl der aktuell laufenden Batches zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity gibt die Kapazität der Job-Queue zurück
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown fährt den Worker-Pool herunter
func (p *WorkerPool) Shutdown() {
	close(p.shutdown)
	close(p.jobs)
}
