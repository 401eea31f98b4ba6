package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
)

// Factory creates one independent Classifier.
type Factory func() (*Classifier, error)

// Pool spreads calls over several independent classifiers so that images
// can be classified in parallel. Each call still runs on exactly one
// instance from start to finish.
type Pool struct {
	idle      chan *Classifier
	instances []*Classifier

	mu     sync.RWMutex
	closed bool
}

// NewPool builds size classifiers with factory. size <= 0 uses
// runtime.NumCPU().
func NewPool(size int, factory Factory) (*Pool, error) {
	if factory == nil {
		return nil, errors.New("nil classifier factory")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}

	p := &Pool{idle: make(chan *Classifier, size)}
	for i := range size {
		c, err := factory()
		if err != nil {
			if cerr := p.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return nil, fmt.Errorf("classifier %d: %w", i, err)
		}
		p.instances = append(p.instances, c)
		p.idle <- c
	}
	return p, nil
}

// Size returns the number of instances.
func (p *Pool) Size() int { return len(p.instances) }

// Geometry returns the model geometry shared by all instances.
func (p *Pool) Geometry() Geometry {
	if len(p.instances) == 0 {
		return Geometry{}
	}
	return p.instances[0].Geometry()
}

// Labels returns the label set shared by all instances.
func (p *Pool) Labels() []string {
	if len(p.instances) == 0 {
		return nil
	}
	return p.instances[0].Labels()
}

// Classify waits for a free instance and classifies img on it. ctx only
// bounds the wait; a started classification always runs to completion.
func (p *Pool) Classify(ctx context.Context, img image.Image, orientation int) ([]Recognition, error) {
	return p.ClassifyTopK(ctx, img, orientation, 0)
}

// ClassifyTopK is Classify with an explicit result limit.
func (p *Pool) ClassifyTopK(ctx context.Context, img image.Image, orientation, k int) ([]Recognition, error) {
	c, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(c)
	return c.ClassifyTopK(img, orientation, k)
}

func (p *Pool) acquire(ctx context.Context) (*Classifier, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	select {
	case c := <-p.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(c *Classifier) {
	p.idle <- c
}

// Close releases every instance. In-flight calls finish first.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, c := range p.instances {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
