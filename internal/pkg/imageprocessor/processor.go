package imageprocessor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/internal/pkg/storage"
)

// DefaultWorkers limits concurrent decodes, image decoding is memory-heavy.
const DefaultWorkers = 3

// ObjectStore is the slice of the storage client the preview pipeline needs.
type ObjectStore interface {
	Download(ctx context.Context, purpose, objectKey string) (io.ReadCloser, error)
	Upload(ctx context.Context, purpose, objectKey string, body io.Reader, contentType string) (string, error)
}

// PreviewJob is one generated image waiting for its preview variant.
type PreviewJob struct {
	ImageID   uint
	ObjectKey string
}

// Processor builds preview variants of generated images with a worker pool.
type Processor struct {
	db    *gorm.DB
	store ObjectStore

	jobs    chan *PreviewJob
	wg      sync.WaitGroup
	started bool
	mutex   sync.Mutex
	active  int32
}

// NewProcessor creates a processor; Start spins up the workers.
func NewProcessor(db *gorm.DB, store ObjectStore) *Processor {
	return &Processor{
		db:    db,
		store: store,
		jobs:  make(chan *PreviewJob, 100),
	}
}

// Start initializes the worker pool
func (p *Processor) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		return
	}

	p.started = true
	for i := 0; i < DefaultWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Info("[ImageProcessor] Worker-Pool gestartet mit ", DefaultWorkers, " Workern")
}

// Stop gracefully shuts down the worker pool
func (p *Processor) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.started {
		return
	}

	close(p.jobs)
	p.wg.Wait()
	p.started = false
	log.Info("[ImageProcessor] Worker-Pool gestoppt")
}

// Enqueue adds a generated image to the preview queue.
func (p *Processor) Enqueue(imageID uint, objectKey string) {
	p.mutex.Lock()
	if !p.started {
		p.mutex.Unlock()
		p.Start()
	} else {
		p.mutex.Unlock()
	}

	p.jobs <- &PreviewJob{ImageID: imageID, ObjectKey: objectKey}
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		atomic.AddInt32(&p.active, 1)
		log.Debug(fmt.Sprintf("[ImageProcessor] Worker %d verarbeitet Bild %d (aktiv: %d)",
			id, job.ImageID, atomic.LoadInt32(&p.active)))

		if err := p.buildPreview(context.Background(), job); err != nil {
			log.Error(fmt.Sprintf("[ImageProcessor] Worker %d: Vorschau für Bild %d fehlgeschlagen: %v",
				id, job.ImageID, err))
		}

		atomic.AddInt32(&p.active, -1)
	}
}

// buildPreview downloads the full image, scales it into the preview box and
// stores the WebP variant next to the original.
func (p *Processor) buildPreview(ctx context.Context, job *PreviewJob) error {
	body, err := p.store.Download(ctx, storage.BucketGeneratedImages, job.ObjectKey)
	if err != nil {
		return err
	}
	defer body.Close()

	img, err := Decode(body, contentTypeOf(job.ObjectKey))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodeWebP(&buf, BuildPreview(img)); err != nil {
		return err
	}

	previewKey := PreviewKey(job.ObjectKey)
	if _, err := p.store.Upload(ctx, storage.BucketGeneratedImages, previewKey, &buf, "image/webp"); err != nil {
		return err
	}

	return p.db.Model(&models.GenerationImage{}).
		Where("id = ?", job.ImageID).
		UpdateColumn("preview_path", previewKey).Error
}

// PreviewKey derives the preview object key from the original's key.
func PreviewKey(objectKey string) string {
	dir, file := path.Split(objectKey)
	ext := path.Ext(file)
	return dir + "previews/" + file[:len(file)-len(ext)] + ".webp"
}

func contentTypeOf(objectKey string) string {
	switch path.Ext(objectKey) {
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
