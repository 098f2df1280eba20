package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/rs/zerolog/log"
)

// ErrorPolicy decides what a render failure does to the rest of the job.
type ErrorPolicy int

const (
	// AbortOnFirstError stops rendering at the first failure.
	AbortOnFirstError ErrorPolicy = iota
	// ContinueOnError renders every transaction and reports all failures together.
	ContinueOnError
)

// Format is the caller-selected encoding of the merged document.
type Format string

const (
	FormatPDFBinary Format = "pdfBinary"
	FormatPDFBase64 Format = "pdfBase64"
)

// Artifact is the merged document of a successful job.
type Artifact struct {
	PDF       []byte
	Pages     int
	Documents int
}

// Encode returns the raw PDF bytes or their base64 text.
func (a *Artifact) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatPDFBinary:
		return a.PDF, nil
	case FormatPDFBase64:
		return []byte(base64.StdEncoding.EncodeToString(a.PDF)), nil
	}
	return nil, bridgeerrors.Wrapf(bridgeerrors.ErrUnsupported, "format %q", f)
}

// JobError is a failed export. Errs holds every failure collected before the job stopped.
type JobError struct {
	Errs []error
}

func (e *JobError) Error() string {
	return "export failed: " + strings.Join(e.Messages(), "; ")
}

func (e *JobError) Unwrap() []error {
	return e.Errs
}

func (e *JobError) Messages() []string {
	return bridgeerrors.Messages(e.Errs...)
}

// Pipeline renders each transaction's approval document and merges them into one PDF.
type Pipeline struct {
	renderer      Renderer
	merger        Merger
	workRoot      string
	policy        ErrorPolicy
	renderTimeout time.Duration
	nowTime       func() time.Time
}

// PipelineOption defines a function type to modify the Pipeline.
type PipelineOption func(*Pipeline)

func WithErrorPolicy(p ErrorPolicy) PipelineOption {
	return func(pl *Pipeline) {
		pl.policy = p
	}
}

func WithRenderTimeout(d time.Duration) PipelineOption {
	return func(pl *Pipeline) {
		pl.renderTimeout = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) PipelineOption {
	return func(pl *Pipeline) {
		pl.nowTime = nowFunc
	}
}

func NewPipeline(renderer Renderer, merger Merger, workRoot string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		renderer: renderer,
		merger:   merger,
		workRoot: workRoot,
		policy:   AbortOnFirstError,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run exports the transactions in their given order. The job's working directory is removed
// before Run returns, whatever the outcome. Failures are returned as *JobError.
func (p *Pipeline) Run(ctx context.Context, txs []upstream.Transaction) (*Artifact, error) {
	if len(txs) == 0 {
		return nil, &JobError{Errs: []error{bridgeerrors.ErrNoTransactions}}
	}

	dir, err := AcquireWorkDir(p.workRoot, p.nowTime())
	if err != nil {
		return nil, &JobError{Errs: []error{bridgeerrors.Wrapf(bridgeerrors.ErrInternal, "%v", err)}}
	}
	defer func() {
		if err := dir.Release(); err != nil {
			log.Err(err).Str("work_dir", dir.Path).Msg("Failed to delete export work dir")
			return
		}
		log.Debug().Str("work_dir", dir.Path).Msg("Export work dir deleted")
	}()

	manifest, errs := p.renderAll(ctx, dir, txs)
	if len(errs) > 0 {
		log.Warn().Int("failed", len(errs)).Int("total", len(txs)).Msg("Export aborted, merge skipped")
		return nil, &JobError{Errs: errs}
	}

	docs := make([][]byte, 0, manifest.Len())
	for _, e := range manifest.Entries() {
		data, err := os.ReadFile(e.Path)
		if err != nil {
			return nil, &JobError{Errs: []error{bridgeerrors.Wrapf(bridgeerrors.ErrInternal, "reading %s: %v", e.FileName, err)}}
		}
		docs = append(docs, data)
	}

	merged, err := p.merger.Merge(ctx, docs)
	if err != nil {
		return nil, &JobError{Errs: []error{bridgeerrors.Wrapf(bridgeerrors.ErrMerge, "%v", err)}}
	}

	pages, err := p.merger.PageCount(merged)
	if err != nil {
		return nil, &JobError{Errs: []error{bridgeerrors.Wrapf(bridgeerrors.ErrMerge, "%v", err)}}
	}

	log.Info().Int("documents", len(docs)).Int("pages", pages).Msg("Export merged")
	return &Artifact{PDF: merged, Pages: pages, Documents: len(docs)}, nil
}

// renderAll renders one transaction at a time; the next render starts only after the
// previous one has returned.
func (p *Pipeline) renderAll(ctx context.Context, dir *WorkDir, txs []upstream.Transaction) (*Manifest, []error) {
	manifest := NewManifest(len(txs))
	var errs []error

	for i, tx := range txs {
		index := i + 1
		name := manifest.FileName(index, tx.PeriodLabel)

		if err := p.renderOne(ctx, dir, manifest, index, name, tx); err != nil {
			log.Err(err).Int("index", index).Msg("Render failed")
			errs = append(errs, err)
			if p.policy == AbortOnFirstError {
				break
			}
		}
	}
	return manifest, errs
}

func (p *Pipeline) renderOne(ctx context.Context, dir *WorkDir, manifest *Manifest, index int, name string, tx upstream.Transaction) error {
	if tx.ApprovalDocumentURL == "" {
		return fmt.Errorf("transaction %d (%s): %w: missing approval document link", index, tx.PeriodLabel, bridgeerrors.ErrRender)
	}

	renderCtx := ctx
	if p.renderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, p.renderTimeout)
		defer cancel()
	}

	doc, err := p.renderer.Render(renderCtx, tx.ApprovalDocumentURL)
	if err != nil {
		return fmt.Errorf("transaction %d (%s): %w: %v", index, tx.PeriodLabel, bridgeerrors.ErrRender, err)
	}

	path, err := dir.Write(name, doc)
	if err != nil {
		return fmt.Errorf("transaction %d (%s): %w: %v", index, tx.PeriodLabel, bridgeerrors.ErrRender, err)
	}
	manifest.Add(Entry{Index: index, Label: tx.PeriodLabel, FileName: name, Path: path})
	return nil
}
