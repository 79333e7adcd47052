package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

// ErrUnsupported marks file types the pipeline should skip rather than
// fail on.
var ErrUnsupported = errors.New("unsupported file type")

type Extractor struct {
	pageTimeout time.Duration
}

func New() *Extractor {
	return &Extractor{
		pageTimeout: 10 * time.Second,
	}
}

// ExtractBytes turns a downloaded file into plain text, routing on the
// file extension.
func (e *Extractor) ExtractBytes(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return e.extractPDF(data)
	case ".docx", ".odt", ".rtf", ".txt":
		return extractDocument(name, data)
	case ".html", ".htm", ".aspx":
		return HTMLText(string(data))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
}

// extractDocument hands the bytes to lu4p/cat, which works on paths, so
// the download lands in a temp file first.
func extractDocument(name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "spindex-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", name, err)
	}
	return cleanText(text), nil
}

func (e *Extractor) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := e.extractPage(page)
		if err != nil {
			// A bad page should not sink the whole document.
			continue
		}
		pages = append(pages, content)
	}

	return cleanText(strings.Join(pages, "\n")), nil
}

// extractPage runs GetPlainText under a watchdog; malformed PDFs can make
// it spin.
func (e *Extractor) extractPage(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(e.pageTimeout):
		return "", errors.New("page extraction timed out")
	}
}

// HTMLText strips a SharePoint page fragment down to its text content.
func HTMLText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Remove()

	// Prefer a main content region when the markup has one.
	var content string
	for _, selector := range []string{"main", "article", "body"} {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Text()
	}

	return cleanText(content), nil
}

func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
