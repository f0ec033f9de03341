// Package importer extracts list item candidates from uploaded documents.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// Formats accepted by Extract. An empty format means plain text.
const (
	FormatText = "text"
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// File is one uploaded document.
type File struct {
	Name   string
	Format string
	Data   []byte
}

// Extract pulls item candidates out of the given files, parsing them
// concurrently while preserving file order in the combined result.
func Extract(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	results := make([][]string, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			items, err := extract(f)
			if err != nil {
				return fmt.Errorf("extracting %q: %w", f.Name, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []string
	for _, r := range results {
		items = append(items, r...)
	}
	return items, nil
}

func extract(f File) ([]string, error) {
	switch f.Format {
	case "", FormatText:
		return splitLines(string(f.Data)), nil
	case FormatHTML:
		return extractHTML(f.Data)
	case FormatPDF:
		return extractPDF(f.Data)
	default:
		return nil, fmt.Errorf("unsupported format %q", f.Format)
	}
}

// splitLines turns plain text into one candidate per non-blank line,
// stripping common bullet markers.
func splitLines(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = stripBullet(strings.TrimSpace(line))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func stripBullet(line string) string {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	// Numbered markers: "1. buy milk", "12) eggs". The space is required so
	// content like "1.5 liters" stays intact.
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		if rest := strings.TrimSpace(line[i+1:]); rest != "" {
			return rest
		}
	}
	return line
}

// extractHTML collects the text of each li element. A list nested inside an
// item counts as part of that item's text.
func extractHTML(data []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var items []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			if text := textContent(n); text != "" {
				items = append(items, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return items, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// extractPDF reads the document's text row by row and splits it like a text
// file. The pdf package panics on some malformed inputs, so failures are
// recovered into errors.
func extractPDF(data []byte) (items []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		for _, row := range rows {
			var sb strings.Builder
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			if line := stripBullet(strings.TrimSpace(sb.String())); line != "" {
				items = append(items, line)
			}
		}
	}
	return items, nil
}
