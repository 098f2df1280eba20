package export

import (
	"fmt"
	"strconv"
	"strings"
)

var labelReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// SanitizeLabel turns a billing period label such as "4/8/2025" into a filename-safe "4-8-2025".
func SanitizeLabel(label string) string {
	s := strings.TrimSpace(labelReplacer.Replace(label))
	if s == "" || s == "." || s == ".." {
		return "transaction"
	}
	return s
}

// Entry is one rendered document of a job, in transaction order.
type Entry struct {
	Index    int // 1-based position in the transaction list
	Label    string
	FileName string
	Path     string
}

// Manifest records rendered documents in the order they must appear in the merged output.
// It is the source of truth for ordering; the filesystem is never listed.
type Manifest struct {
	width   int
	entries []Entry
}

// NewManifest sizes the index padding for total documents so file names also sort correctly.
func NewManifest(total int) *Manifest {
	return &Manifest{
		width:   len(strconv.Itoa(max(total, 1))),
		entries: make([]Entry, 0, total),
	}
}

// FileName returns "{index} - {label}.pdf" with the index zero padded to the job width.
func (m *Manifest) FileName(index int, label string) string {
	return fmt.Sprintf("%0*d - %s.pdf", m.width, index, SanitizeLabel(label))
}

func (m *Manifest) Add(e Entry) {
	m.entries = append(m.entries, e)
}

func (m *Manifest) Entries() []Entry {
	return m.entries
}

func (m *Manifest) Len() int {
	return len(m.entries)
}
