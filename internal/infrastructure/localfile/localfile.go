package localfile

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

const sniffLen = 512

var knownTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".json": "application/json",
}

// Candidate describes a file on disk for selection. The MIME type comes
// from the extension when known, otherwise from the first bytes.
func Candidate(path string) (domain.Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("stat local file: %w", err)
	}
	if info.IsDir() {
		return domain.Candidate{}, domain.WrapError(domain.ErrInvalidInput, "stat local file", fmt.Errorf("%s is a directory", path))
	}

	mimeType, err := detectMIME(path)
	if err != nil {
		return domain.Candidate{}, err
	}

	return domain.Candidate{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("open local file: %w", err)
			}
			return f, nil
		},
	}, nil
}

func detectMIME(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if known, ok := knownTypes[ext]; ok {
		return known, nil
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read local file: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

// Info is shown before a file is uploaded.
type Info struct {
	Pages int
	Lines int
	// Text is set for files whose content is valid UTF-8 text.
	Text bool
}

// Inspect reads enough of a candidate to describe it. PDFs report their page
// count; text files their line count.
func Inspect(path, mimeType string) (Info, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mediaType == "application/pdf":
		pages, err := PageCount(path)
		if err != nil {
			return Info{}, err
		}
		return Info{Pages: pages}, nil
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
	default:
		return Info{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("read local file: %w", err)
	}
	if !utf8.Valid(raw) {
		return Info{}, domain.WrapError(domain.ErrInvalidInput, "inspect local file", fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path)))
	}
	text := strings.TrimRight(string(raw), "\n")
	lines := 0
	if text != "" {
		lines = strings.Count(text, "\n") + 1
	}
	return Info{Lines: lines, Text: true}, nil
}

func PageCount(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "read pdf", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// Save writes r to path through a temporary file in the same directory so a
// failed download never leaves a truncated file behind.
func Save(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create target dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return n, fmt.Errorf("write file: %w", copyErr)
		}
		return n, fmt.Errorf("close file: %w", closeErr)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return n, fmt.Errorf("move file into place: %w", err)
	}
	return n, nil
}
