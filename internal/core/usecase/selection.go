package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

const (
	// SourceAccept lists the file types accepted for source uploads.
	SourceAccept = ".pdf,.txt"
	// DefaultMaxUploadBytes is the largest local file accepted for upload.
	DefaultMaxUploadBytes int64 = 50 * 1024 * 1024
)

type SelectionOptions struct {
	// Accept is a comma separated list of extensions (".pdf"), MIME
	// wildcards ("image/*") or exact MIME types. Empty or "*" accepts all.
	Accept string
	// MaxSize is the byte limit; zero or negative means unlimited.
	MaxSize  int64
	Multiple bool
}

func SourceSelectionOptions(maxSize int64) SelectionOptions {
	return SelectionOptions{Accept: SourceAccept, MaxSize: maxSize}
}

// FileSelection validates and holds locally chosen candidates. It never
// touches the network.
type FileSelection struct {
	opts     SelectionOptions
	patterns []string

	mu       sync.Mutex
	files    []domain.Candidate
	errors   []string
	dragging bool
}

func NewFileSelection(opts SelectionOptions) *FileSelection {
	return &FileSelection{
		opts:     opts,
		patterns: parseAccept(opts.Accept),
	}
}

// AddFiles validates candidates in order and returns the accepted subset and
// one rejection message per rejected candidate. Single mode replaces the
// selection, multi mode appends. The error list is replaced on every call.
func (s *FileSelection) AddFiles(candidates ...domain.Candidate) ([]domain.Candidate, []string) {
	accepted := make([]domain.Candidate, 0, len(candidates))
	rejected := make([]string, 0)

	for _, c := range candidates {
		if msg := s.validate(c); msg != "" {
			rejected = append(rejected, msg)
			continue
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		accepted = append(accepted, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Multiple {
		s.files = append(s.files, accepted...)
	} else {
		s.files = append([]domain.Candidate(nil), accepted...)
	}
	s.errors = rejected

	return cloneCandidates(accepted), append([]string(nil), rejected...)
}

// RemoveFile drops the first candidate with the given name.
func (s *FileSelection) RemoveFile(name string) bool {
	return s.removeFirst(func(c domain.Candidate) bool { return c.Name == name })
}

// RemoveByID drops the candidate with the given id. Unlike RemoveFile it
// tells apart candidates that share a name.
func (s *FileSelection) RemoveByID(id string) bool {
	return s.removeFirst(func(c domain.Candidate) bool { return c.ID == id })
}

func (s *FileSelection) removeFirst(match func(domain.Candidate) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.files {
		if match(c) {
			s.files = append(s.files[:i:i], s.files[i+1:]...)
			return true
		}
	}
	return false
}

func (s *FileSelection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
	s.errors = nil
}

func (s *FileSelection) Files() []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCandidates(s.files)
}

func (s *FileSelection) First() (domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return domain.Candidate{}, false
	}
	return s.files[0], true
}

func (s *FileSelection) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// SetDragging tracks whether a drag is hovering the drop target. It has no
// effect on validation.
func (s *FileSelection) SetDragging(dragging bool) {
	s.mu.Lock()
	s.dragging = dragging
	s.mu.Unlock()
}

func (s *FileSelection) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging
}

func (s *FileSelection) validate(c domain.Candidate) string {
	if s.opts.MaxSize > 0 && c.Size > s.opts.MaxSize {
		return fmt.Sprintf("File %q exceeds %s.", c.Name, FormatBytes(s.opts.MaxSize))
	}
	if len(s.patterns) > 0 && !matchesAny(s.patterns, c) {
		return fmt.Sprintf("File %q is not an accepted type.", c.Name)
	}
	return ""
}

func parseAccept(accept string) []string {
	accept = strings.TrimSpace(accept)
	if accept == "" || accept == "*" {
		return nil
	}
	var out []string
	for _, token := range strings.Split(accept, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}

func matchesAny(patterns []string, c domain.Candidate) bool {
	ext := "." + strings.ToLower(c.Name[strings.LastIndex(c.Name, ".")+1:])
	mimeType := strings.ToLower(c.MIMEType)
	for _, pattern := range patterns {
		switch {
		case strings.HasPrefix(pattern, "."):
			if strings.ToLower(pattern) == ext {
				return true
			}
		case strings.HasSuffix(pattern, "/*"):
			if strings.HasPrefix(mimeType, strings.ToLower(strings.TrimSuffix(pattern, "*"))) {
				return true
			}
		default:
			if mimeType == strings.ToLower(pattern) {
				return true
			}
		}
	}
	return false
}

// FormatBytes renders a size with binary units and at most two decimals,
// e.g. 52428800 -> "50 MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	value := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}

func cloneCandidates(in []domain.Candidate) []domain.Candidate {
	return append([]domain.Candidate(nil), in...)
}
