// Package exporttest provides fakes and fixtures for export pipeline tests.
package exporttest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PDF builds a minimal, structurally valid PDF with the given number of blank A4 pages.
func PDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, pages)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))

	for range pages {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// FakeRenderer serves canned documents per URL and records the order it was called in.
// Each render stays active for Delay so overlapping calls show up in MaxActive.
type FakeRenderer struct {
	lock sync.Mutex

	Docs     map[string][]byte
	Failures map[string]error
	Calls    []string
	Delay    time.Duration

	active    int
	MaxActive int
}

func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{
		Docs:     make(map[string][]byte),
		Failures: make(map[string]error),
		Delay:    2 * time.Millisecond,
	}
}

func (r *FakeRenderer) Render(_ context.Context, url string) ([]byte, error) {
	r.lock.Lock()
	r.Calls = append(r.Calls, url)
	r.active++
	r.MaxActive = max(r.MaxActive, r.active)
	doc, ok := r.Docs[url]
	err := r.Failures[url]
	delay := r.Delay
	r.lock.Unlock()

	time.Sleep(delay)

	r.lock.Lock()
	r.active--
	r.lock.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED")
	}
	return doc, nil
}

// LineMerger is a Merger over plain text documents: each line counts as one page.
type LineMerger struct {
	Merged [][]byte
}

func (m *LineMerger) Merge(_ context.Context, docs [][]byte) ([]byte, error) {
	m.Merged = docs
	return bytes.Join(docs, []byte("\n")), nil
}

func (m *LineMerger) PageCount(doc []byte) (int, error) {
	if len(doc) == 0 {
		return 0, nil
	}
	return bytes.Count(doc, []byte("\n")) + 1, nil
}
