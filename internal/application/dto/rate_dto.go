package dto

import "time"

// RateResponse tasa vigente. origin=live si se obtuvo de la red en esta llamada.
type RateResponse struct {
	Value      float64    `json:"value"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	Origin     string     `json:"origin"`
	Reason     string     `json:"reason,omitempty"`
	Stale      bool       `json:"stale"`
}
