package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// LoadFile extracts plain text from a document on disk. PDF and HTML files
// are converted; anything else is read as-is. The returned title is the
// base filename without extension.
func LoadFile(path string) (title, content string, err error) {
	base := filepath.Base(path)
	title = strings.TrimSuffix(base, filepath.Ext(base))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = loadPDF(path)
	case ".html", ".htm":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return "", "", fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		content, err = HTMLToText(f)
	default:
		var raw []byte
		raw, err = os.ReadFile(path)
		content = string(raw)
	}
	if err != nil {
		return "", "", fmt.Errorf("loading %s: %w", path, err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", fmt.Errorf("loading %s: no extractable text", path)
	}
	return title, content, nil
}

func loadPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// HTMLToText strips markup and returns the visible text, one line per
// text node, with script and style contents dropped.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String()), nil
}
