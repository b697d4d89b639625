package ratesource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparsableRate el texto no contiene un número positivo utilizable.
var ErrUnparsableRate = errors.New("tasa no parseable")

// ParseLocaleNumber convierte texto como "Bs. 36,1234" o "1.234,56" en float64.
// Elimina todo lo que no sea dígito o coma, cambia la coma por punto y rechaza valores <= 0.
func ParseLocaleNumber(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(b.String(), ",", ".")
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRate, text)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableRate, text)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %q no es positivo", ErrUnparsableRate, text)
	}
	return v, nil
}
