package batch

import (
	"context"

	"ytbatch/internal/model"
)

// Classification is the engine's answer for one URL. Err is set when the
// engine could not classify it at all.
type Classification struct {
	ExtractorID string
	Err         string
}

// Invocation is what one engine run reported. Completed is true when the
// engine got past its download phase.
type Invocation struct {
	Files     []model.ProducedFile
	Completed bool
}

type Engine interface {
	Classify(ctx context.Context, url string) (Classification, error)
	Invoke(ctx context.Context, args []string, url string) (Invocation, error)
}

// BatchClassifier is implemented by engines that classify many URLs in one
// call. Results must line up with urls by index.
type BatchClassifier interface {
	ClassifyAll(ctx context.Context, urls []string) ([]Classification, error)
}
