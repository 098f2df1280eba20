package export_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/ravkav-bridge/export"
	"github.com/jrsteele09/ravkav-bridge/export/exporttest"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func transactions(n int) []upstream.Transaction {
	txs := make([]upstream.Transaction, n)
	for i := range n {
		txs[i] = upstream.Transaction{
			ApprovalDocumentURL: fmt.Sprintf("https://docs.example/%d", i+1),
			PeriodLabel:         fmt.Sprintf("%d/1/2025", i+1),
		}
	}
	return txs
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "work dir left behind")
}

func TestRun_PreservesOrderPastNine(t *testing.T) {
	root := t.TempDir()
	txs := transactions(12)
	renderer := exporttest.NewFakeRenderer()
	for _, tx := range txs {
		renderer.Docs[tx.ApprovalDocumentURL] = []byte(tx.ApprovalDocumentURL)
	}
	merger := &exporttest.LineMerger{}

	p := export.NewPipeline(renderer, merger, root, export.WithNowTime(func() time.Time { return testNow }))
	artifact, err := p.Run(t.Context(), txs)
	require.NoError(t, err)

	require.Len(t, merger.Merged, 12)
	for i, doc := range merger.Merged {
		require.Equal(t, txs[i].ApprovalDocumentURL, string(doc))
	}
	require.Equal(t, 12, artifact.Pages)
	require.Equal(t, 12, artifact.Documents)
	require.Equal(t, 1, renderer.MaxActive)
	requireEmptyDir(t, root)
}

func TestRun_AbortOnFirstError(t *testing.T) {
	root := t.TempDir()
	txs := transactions(3)
	renderer := exporttest.NewFakeRenderer()
	renderer.Docs[txs[0].ApprovalDocumentURL] = []byte("one")
	renderer.Failures[txs[1].ApprovalDocumentURL] = errors.New("timeout waiting for page")
	renderer.Docs[txs[2].ApprovalDocumentURL] = []byte("three")
	merger := &exporttest.LineMerger{}

	artifact, err := export.NewPipeline(renderer, merger, root).Run(t.Context(), txs)
	require.Nil(t, artifact)

	var jobErr *export.JobError
	require.ErrorAs(t, err, &jobErr)
	require.Len(t, jobErr.Messages(), 1)
	require.ErrorIs(t, err, bridgeerrors.ErrRender)
	require.Contains(t, jobErr.Messages()[0], "timeout waiting for page")
	require.Equal(t, []string{txs[0].ApprovalDocumentURL, txs[1].ApprovalDocumentURL}, renderer.Calls)
	require.Nil(t, merger.Merged, "merge must be skipped")
	requireEmptyDir(t, root)
}

func TestRun_ContinueOnError(t *testing.T) {
	root := t.TempDir()
	txs := transactions(3)
	renderer := exporttest.NewFakeRenderer()
	renderer.Docs[txs[1].ApprovalDocumentURL] = []byte("two")
	merger := &exporttest.LineMerger{}

	_, err := export.NewPipeline(renderer, merger, root, export.WithErrorPolicy(export.ContinueOnError)).Run(t.Context(), txs)

	var jobErr *export.JobError
	require.ErrorAs(t, err, &jobErr)
	require.Len(t, jobErr.Messages(), 2)
	require.Len(t, renderer.Calls, 3)
	require.Nil(t, merger.Merged)
	requireEmptyDir(t, root)
}

func TestRun_MissingLink(t *testing.T) {
	root := t.TempDir()
	txs := transactions(1)
	txs[0].ApprovalDocumentURL = ""

	_, err := export.NewPipeline(exporttest.NewFakeRenderer(), &exporttest.LineMerger{}, root).Run(t.Context(), txs)
	require.ErrorIs(t, err, bridgeerrors.ErrRender)
	requireEmptyDir(t, root)
}

func TestRun_NoTransactions(t *testing.T) {
	root := t.TempDir()
	_, err := export.NewPipeline(exporttest.NewFakeRenderer(), &exporttest.LineMerger{}, root).Run(t.Context(), nil)
	require.ErrorIs(t, err, bridgeerrors.ErrNoTransactions)
	requireEmptyDir(t, root)
}

func TestRun_MergeFailureCleansUp(t *testing.T) {
	root := t.TempDir()
	txs := transactions(2)
	renderer := exporttest.NewFakeRenderer()
	for _, tx := range txs {
		renderer.Docs[tx.ApprovalDocumentURL] = []byte("not a pdf")
	}

	_, err := export.NewPipeline(renderer, export.NewPDFCPUMerger(), root).Run(t.Context(), txs)
	require.ErrorIs(t, err, bridgeerrors.ErrMerge)
	requireEmptyDir(t, root)
}

func TestRun_PDFPageCountsAddUp(t *testing.T) {
	root := t.TempDir()
	txs := transactions(3)
	renderer := exporttest.NewFakeRenderer()
	pageCounts := []int{1, 2, 3}
	for i, tx := range txs {
		renderer.Docs[tx.ApprovalDocumentURL] = exporttest.PDF(pageCounts[i])
	}

	artifact, err := export.NewPipeline(renderer, export.NewPDFCPUMerger(), root).Run(t.Context(), txs)
	require.NoError(t, err)
	require.Equal(t, 6, artifact.Pages)
	requireEmptyDir(t, root)
}

func TestRun_ConcurrentJobsDoNotCollide(t *testing.T) {
	root := t.TempDir()
	txs := transactions(2)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			renderer := exporttest.NewFakeRenderer()
			for _, tx := range txs {
				renderer.Docs[tx.ApprovalDocumentURL] = []byte(tx.PeriodLabel)
			}
			// Same clock for every job: only the random suffix separates them
			p := export.NewPipeline(renderer, &exporttest.LineMerger{}, root, export.WithNowTime(func() time.Time { return testNow }))
			_, errs[i] = p.Run(t.Context(), txs)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	requireEmptyDir(t, root)
}

func TestArtifact_Encode(t *testing.T) {
	a := &export.Artifact{PDF: []byte("%PDF-1.4 data")}

	raw, err := a.Encode(export.FormatPDFBinary)
	require.NoError(t, err)
	require.Equal(t, a.PDF, raw)

	b64, err := a.Encode(export.FormatPDFBase64)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(string(b64))
	require.NoError(t, err)
	require.Equal(t, a.PDF, decoded)

	_, err = a.Encode("excel")
	require.ErrorIs(t, err, bridgeerrors.ErrUnsupported)
}

func TestAcquireWorkDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "pdfs")
	dir, err := export.AcquireWorkDir(root, testNow)
	require.NoError(t, err)
	require.Contains(t, filepath.Base(dir.Path), fmt.Sprintf("tmp_%d_", testNow.UnixMilli()))

	_, err = dir.Write("1 - a.pdf", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, dir.Release())
	_, err = os.Stat(dir.Path)
	require.True(t, os.IsNotExist(err))
	require.NoError(t, dir.Release())
}
