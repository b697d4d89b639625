package ratesource

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNoRateField ninguno de los campos esperados trae un valor numérico.
var ErrNoRateField = errors.New("respuesta sin campo de tasa utilizable")

// FieldExtractor extrae un campo opcional de la respuesta JSON.
// Keys son los nombres aceptados para el mismo campo (inglés y el usado por dolarapi).
type FieldExtractor struct {
	Name string
	Keys []string
}

// DefaultExtractors orden de prioridad: venta, promedio, compra.
var DefaultExtractors = []FieldExtractor{
	{Name: "sell", Keys: []string{"sell", "venta"}},
	{Name: "average", Keys: []string{"average", "promedio"}},
	{Name: "buy", Keys: []string{"buy", "compra"}},
}

// Extract devuelve el valor del campo si está presente y no es null.
// Acepta números JSON y también números enviados como string.
func (e FieldExtractor) Extract(fields map[string]json.RawMessage) (float64, bool) {
	for _, key := range e.Keys {
		raw, ok := fields[key]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		if f, err := ParseLocaleNumber(s); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ExtractRate aplica los extractores en orden; el primero con valor es el candidato.
func ExtractRate(fields map[string]json.RawMessage, extractors []FieldExtractor) (float64, string, error) {
	for _, e := range extractors {
		if v, ok := e.Extract(fields); ok {
			return v, e.Name, nil
		}
	}
	return 0, "", ErrNoRateField
}
