package ratesource

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	// DefaultBCVURL portada del Banco Central, donde se publica la tasa oficial.
	DefaultBCVURL = "https://www.bcv.org.ve"
	// BCVSelector elemento que contiene la tasa del dólar.
	BCVSelector = "div#dolar div.centrado strong"
)

// BCVScraperSource fuente de respaldo: raspa la página del BCV.
type BCVScraperSource struct {
	url      string
	client   *http.Client
	selector string
}

// NewBCVScraperSource crea el scraper; timeout por defecto 30s.
func NewBCVScraperSource(url string, client *http.Client, timeout time.Duration) *BCVScraperSource {
	if url == "" {
		url = DefaultBCVURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &BCVScraperSource{url: url, client: client, selector: BCVSelector}
}

func (s *BCVScraperSource) Name() string { return "bcv" }

// Fetch descarga la página y extrae la tasa. Un fallo de parseo cuenta igual que uno de red.
func (s *BCVScraperSource) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("bcv: request: %w", err)
	}
	req.Header.Set("User-Agent", RandomUserAgent())
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("bcv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("bcv: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(decodeBody(resp.Body, resp.Header.Get("Content-Type")))
	if err != nil {
		return 0, fmt.Errorf("bcv: parse html: %w", err)
	}

	sel := doc.Find(s.selector).First()
	if sel.Length() == 0 {
		return 0, fmt.Errorf("bcv: selector %q sin resultados", s.selector)
	}

	v, err := ParseLocaleNumber(sel.Text())
	if err != nil {
		return 0, fmt.Errorf("bcv: %w", err)
	}
	return v, nil
}

// decodeBody convierte a UTF-8 las páginas servidas en latin-1.
func decodeBody(body io.Reader, contentType string) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	switch strings.ToLower(params["charset"]) {
	case "iso-8859-1", "latin1", "latin-1":
		return transform.NewReader(body, charmap.ISO8859_1.NewDecoder())
	case "windows-1252", "cp1252":
		return transform.NewReader(body, charmap.Windows1252.NewDecoder())
	default:
		return body
	}
}
