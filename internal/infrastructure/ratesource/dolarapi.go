package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultDolarAPIURL endpoint de la tasa oficial.
const DefaultDolarAPIURL = "https://ve.dolarapi.com/v1/dolares/oficial"

// DolarAPISource fuente primaria: API JSON con campos opcionales de venta/promedio/compra.
type DolarAPISource struct {
	url        string
	client     *http.Client
	extractors []FieldExtractor
}

// NewDolarAPISource crea la fuente. Si client es nil se usa uno con el timeout indicado.
func NewDolarAPISource(url string, client *http.Client, timeout time.Duration) *DolarAPISource {
	if url == "" {
		url = DefaultDolarAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &DolarAPISource{url: url, client: client, extractors: DefaultExtractors}
}

func (s *DolarAPISource) Name() string { return "dolarapi" }

// Fetch consulta la API y devuelve el primer campo de tasa presente.
func (s *DolarAPISource) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("dolarapi: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", RandomUserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dolarapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("dolarapi: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("dolarapi: read body: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return 0, fmt.Errorf("dolarapi: decode: %w", err)
	}

	v, _, err := ExtractRate(fields, s.extractors)
	if err != nil {
		return 0, fmt.Errorf("dolarapi: %w", err)
	}
	return v, nil
}
