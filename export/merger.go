package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Merger concatenates PDF documents page by page in the given order.
type Merger interface {
	Merge(ctx context.Context, docs [][]byte) ([]byte, error)
	PageCount(doc []byte) (int, error)
}

// PDFCPUMerger merges in memory with pdfcpu.
type PDFCPUMerger struct {
	conf *model.Configuration
}

func NewPDFCPUMerger() *PDFCPUMerger {
	// Keep pdfcpu from creating a config directory in the user's home
	model.ConfigPath = "disable"
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPUMerger{conf: conf}
}

func (m *PDFCPUMerger) Merge(ctx context.Context, docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, errors.New("nothing to merge")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rsc := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		rsc[i] = bytes.NewReader(d)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, m.conf); err != nil {
		return nil, fmt.Errorf("merging %d documents: %w", len(docs), err)
	}
	return out.Bytes(), nil
}

func (m *PDFCPUMerger) PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), m.conf)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}
