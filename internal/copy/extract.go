// Package copy generates ad copy and gathers the product context fed to
// the prompt: landing-page text or an uploaded brief PDF.
package copy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	maxFetchSize    = 5 << 20 // 5MB
	maxContextRunes = 8000
	fetchTimeout    = 10 * time.Second
)

// ExtractURLText fetches a landing page and returns its visible text,
// truncated to a prompt-sized budget.
func ExtractURLText(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}
	return truncate(collectText(doc)), nil
}

// collectText walks the HTML tree collecting text nodes, skipping
// non-content elements.
func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "svg", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// ExtractPDFText returns the plain text of a product-brief PDF.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	rc, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	if _, err := io.Copy(&b, rc); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return truncate(strings.TrimSpace(b.String())), nil
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxContextRunes {
		return s
	}
	return string(runes[:maxContextRunes])
}
