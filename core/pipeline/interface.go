package pipeline

import (
	"context"
	"errors"

	"github.com/castrolol/editalgraph/model"
)

// Page is one page of a procurement document, the unit of extraction.
type Page struct {
	Number int
	Text   string
}

// ExtractFunc is the upstream extraction call. It turns one page into
// raw entity, section and event candidates. The returned batch is
// untrusted input; defaults and validation are applied downstream.
type ExtractFunc func(ctx context.Context, page Page) (*model.RawBatch, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// Pipeline combines the extraction call with an optional embedder used
// for entity similarity search.
type Pipeline struct {
	Extractor ExtractFunc
	Embedder  EmbedFunc // Optional
}

// NewPipeline creates a new extraction pipeline
func NewPipeline(extractor ExtractFunc) *Pipeline {
	return &Pipeline{
		Extractor: extractor,
	}
}

// SetEmbedder sets the embedding function
func (p *Pipeline) SetEmbedder(embedder EmbedFunc) {
	p.Embedder = embedder
}

// ExtractPage runs the extraction call for one page. A nil batch from
// the extractor counts as empty, and candidates that did not declare a
// page number inherit the page's.
func (p *Pipeline) ExtractPage(ctx context.Context, page Page) (*model.RawBatch, error) {
	if p.Extractor == nil {
		return nil, errors.New("extractor not set")
	}

	batch, err := p.Extractor(ctx, page)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		batch = &model.RawBatch{}
	}

	for i := range batch.Entities {
		if batch.Entities[i].PageNumber == 0 {
			batch.Entities[i].PageNumber = page.Number
		}
	}
	for i := range batch.Sections {
		if batch.Sections[i].PageNumber == 0 {
			batch.Sections[i].PageNumber = page.Number
		}
	}
	for i := range batch.Events {
		if batch.Events[i].PageNumber == 0 {
			batch.Events[i].PageNumber = page.Number
		}
	}

	return batch, nil
}
