package image

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrBusy        = errors.New("an image is already being generated")
	ErrNoImage     = errors.New("no image has been generated")
)

// Status is the phase of the image controller.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// DefaultEstimate is how long the progress estimate takes to reach its cap.
const DefaultEstimate = 15 * time.Second

// progressCap is where the estimate waits until the real result arrives.
const progressCap = 95

// Snapshot is the view of the controller. Progress is an estimate derived from elapsed
// time only; it says nothing about how far the backend actually is.
type Snapshot struct {
	Status         Status  `json:"status"`
	Prompt         string  `json:"prompt,omitempty"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Error          string  `json:"error,omitempty"`
	Progress       float64 `json:"progress"`
	LoadingMessage string  `json:"loadingMessage,omitempty"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithEstimate sets the duration over which progress climbs to its cap.
func WithEstimate(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.estimate = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller drives a single prompt to a single image, one generation at a time.
type Controller struct {
	mu         sync.Mutex
	generator  ai.ImageGenerator
	estimate   time.Duration
	clock      func() time.Time
	status     Status
	prompt     string
	image      ai.Image
	err        string
	started    time.Time
	progress   float64
	generation uint64
	cancel     context.CancelFunc
}

// NewController wraps an image generator.
func NewController(generator ai.ImageGenerator, opts ...Option) *Controller {
	c := &Controller{
		generator: generator,
		estimate:  DefaultEstimate,
		clock:     time.Now,
		status:    StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins generating prompt in the background. The returned channel yields the
// outcome once. A call while another generation runs fails with ErrBusy and changes nothing.
func (c *Controller) Start(ctx context.Context, prompt string) (<-chan error, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()
	if c.status == StatusGenerating {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.generation++
	generation := c.generation
	c.status = StatusGenerating
	c.prompt = prompt
	c.image = ai.Image{}
	c.err = ""
	c.progress = 0
	c.started = c.clock()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer cancel()
		img, err := c.generator.GenerateImage(runCtx, prompt)
		done <- c.finish(generation, img, err)
	}()
	return done, nil
}

// Generate runs Start and waits for the outcome.
func (c *Controller) Generate(ctx context.Context, prompt string) error {
	done, err := c.Start(ctx, prompt)
	if err != nil {
		return err
	}
	return <-done
}

func (c *Controller) finish(generation uint64, img ai.Image, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return context.Canceled
	}
	c.cancel = nil
	if err == nil && len(img.Data) == 0 {
		err = errors.New("the model returned no image")
	}
	if err != nil {
		c.status = StatusFailed
		c.err = "Failed to generate image: " + err.Error()
		c.progress = 0
		log.Printf("[image] generation failed: %v", err)
		return fmt.Errorf("generate image: %w", err)
	}

	c.status = StatusSuccess
	c.image = img
	c.progress = 100
	log.Printf("[image] generated %d bytes (%s)", len(img.Data), img.MIMEType)
	return nil
}

// Snapshot reports the current state with a fresh progress estimate.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusGenerating {
		elapsed := c.clock().Sub(c.started)
		estimate := math.Min(progressCap, float64(elapsed)/float64(c.estimate)*100)
		c.progress = math.Max(c.progress, estimate)
	}

	snap := Snapshot{
		Status:   c.status,
		Prompt:   c.prompt,
		ImageURL: c.image.DataURL(),
		Error:    c.err,
		Progress: c.progress,
	}
	if c.status == StatusGenerating {
		snap.LoadingMessage = LoadingMessage(c.progress)
	}
	return snap
}

// Image returns the last generated image.
func (c *Controller) Image() (ai.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusSuccess {
		return ai.Image{}, ErrNoImage
	}
	return c.image, nil
}

// Close abandons a running generation.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.status == StatusGenerating {
		c.generation++
		c.status = StatusIdle
		c.progress = 0
	}
}

// LoadingMessage picks the caption shown under the progress bar.
func LoadingMessage(progress float64) string {
	switch {
	case progress < 20:
		return "Waking up the sleeping GPUs..."
	case progress < 45:
		return "Conjuring pixels from the digital ether..."
	case progress < 75:
		return "Painting with bolts of lightning..."
	case progress < 95:
		return "Reticulating splines with artistic flair..."
	default:
		return "Adding the finishing touches..."
	}
}

// DownloadName is the file name offered for a generated image.
func DownloadName(now time.Time) string {
	return fmt.Sprintf("image-%d.png", now.UnixMilli())
}
