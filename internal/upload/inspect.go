package upload

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"studio/internal/domain"
)

// NormalizePath turns what a terminal delivers for a dropped or typed file
// into a plain filesystem path. Drops arrive quoted, shell-escaped, or as
// file:// URLs depending on the terminal; only the first file is kept.
func NormalizePath(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "file://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Path
		}
	} else {
		s = unescapeShell(s)
	}
	if strings.HasPrefix(s, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			s = filepath.Join(home, s[2:])
		}
	}
	return s
}

func unescapeShell(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// Inspect reads enough of path to describe it as a FileCandidate. The MIME
// type is sniffed from content, not taken from the extension.
func Inspect(path string) (domain.FileCandidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileCandidate{}, err
	}
	if info.IsDir() {
		return domain.FileCandidate{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return domain.FileCandidate{}, fmt.Errorf("detecting type of %s: %w", path, err)
	}
	c := domain.FileCandidate{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: baseMIME(mt.String()),
	}
	if c.MIMEType == domain.AcceptedMIMEType {
		c.Pages = countPages(path)
	}
	return c, nil
}

func baseMIME(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// countPages returns 0 when the document cannot be parsed; the backend is
// the authority on whether a PDF is usable.
func countPages(path string) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
