// Package cache ties a document identity to its built index.
//
// Only the active document is kept. Building a different document evicts the
// previous index, concurrent builds of one document share a single run, and a
// build that finishes after its document was replaced is thrown away.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"document-qa/internal/chromemdb"
	"document-qa/internal/models"
)

// Builder produces the index of a document
type Builder interface {
	Build(ctx context.Context, doc models.Document) (*chromemdb.Index, error)
}

type entry struct {
	doc   models.Document
	state models.BuildState
	index *chromemdb.Index
	err   error
	gen   uint64
}

type PipelineCache struct {
	builder   Builder
	namespace string

	mu      sync.Mutex
	entries map[string]*entry
	active  string
	gen     uint64
	group   singleflight.Group
}

// New creates a cache whose keys are scoped by namespace, usually the
// fingerprint of the chunking and embedding settings.
func New(builder Builder, namespace string) *PipelineCache {
	return &PipelineCache{
		builder:   builder,
		namespace: namespace,
		entries:   make(map[string]*entry),
	}
}

func (c *PipelineCache) key(id string) string {
	if c.namespace == "" {
		return id
	}
	return c.namespace + "/" + id
}

// Build returns the index of doc, building it if needed. doc becomes the active
// document and any other index is evicted. A failed build is retried.
//
// The build keeps running when ctx ends; only this caller stops waiting.
func (c *PipelineCache) Build(ctx context.Context, doc models.Document) (*chromemdb.Index, error) {
	key := c.key(doc.ID)

	c.mu.Lock()
	if c.active != key {
		c.evictLocked()
		c.active = key
	}
	e := c.entries[key]
	if e != nil && e.state == models.StateReady {
		index := e.index
		c.mu.Unlock()
		log.Debug().Str("document", doc.Name).Msg("Using cached index")
		return index, nil
	}
	if e == nil || e.state == models.StateFailed {
		c.gen++
		e = &entry{doc: doc, state: models.StateBuilding, gen: c.gen}
		c.entries[key] = e
	}
	gen := e.gen
	c.mu.Unlock()

	ch := c.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		return c.run(context.WithoutCancel(ctx), key, gen, doc)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*chromemdb.Index), nil
	}
}

func (c *PipelineCache) run(ctx context.Context, key string, gen uint64, doc models.Document) (*chromemdb.Index, error) {
	c.mu.Lock()
	e := c.entries[key]
	if e == nil || e.gen != gen {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentSuperseded, doc.Name)
	}
	// an earlier run of this generation already finished
	switch e.state {
	case models.StateReady:
		index := e.index
		c.mu.Unlock()
		return index, nil
	case models.StateFailed:
		err := e.err
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	log.Info().Str("document", doc.Name).Str("id", doc.ID).Msg("Building index")
	index, err := c.builder.Build(ctx, doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	e = c.entries[key]
	if e == nil || e.gen != gen {
		log.Info().Str("document", doc.Name).Msg("Discarding index of replaced document")
		if index != nil {
			_ = index.Close()
		}
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentSuperseded, doc.Name)
	}
	if err != nil {
		log.Error().Err(err).Str("document", doc.Name).Msg("Index build failed")
		e.state = models.StateFailed
		e.err = err
		return nil, err
	}
	e.state = models.StateReady
	e.index = index
	return index, nil
}

// Active returns the index of the active document once it is ready
func (c *PipelineCache) Active() (*chromemdb.Index, models.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[c.active]
	if e == nil || e.state != models.StateReady {
		return nil, models.Document{}, false
	}
	return e.index, e.doc, true
}

// Status reports the build state of the active document
func (c *PipelineCache) Status() models.BuildStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[c.active]
	if e == nil {
		return models.BuildStatus{State: models.StateUninitialized, Message: "Upload a document to get started"}
	}

	status := models.BuildStatus{State: e.state, Document: e.doc, Err: e.err}
	switch e.state {
	case models.StateBuilding:
		status.Message = fmt.Sprintf("Processing %s...", e.doc.Name)
	case models.StateReady:
		status.Message = fmt.Sprintf("%s is ready (%d chunks)", e.doc.Name, e.index.Count())
	case models.StateFailed:
		status.Message = fmt.Sprintf("Failed to process %s: %v", e.doc.Name, e.err)
	}
	return status
}

// Invalidate drops every index. Builds still running are discarded when they finish.
func (c *PipelineCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	c.active = ""
}

func (c *PipelineCache) evictLocked() {
	for key, e := range c.entries {
		if e.index != nil {
			if err := e.index.Close(); err != nil {
				log.Warn().Err(err).Str("document", e.doc.Name).Msg("Failed to close index")
			}
		}
		delete(c.entries, key)
	}
	c.gen++
}
