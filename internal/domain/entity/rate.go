package entity

import "time"

// RateOrigin procedencia de una tasa entregada a los consumidores.
type RateOrigin string

const (
	RateOriginLive   RateOrigin = "live"
	RateOriginCached RateOrigin = "cached"
)

// RateReason motivo por el cual se entregó la tasa en caché.
type RateReason string

const (
	RateReasonNone              RateReason = ""
	RateReasonNoConnectivity    RateReason = "no_connectivity"
	RateReasonAcquisitionFailed RateReason = "acquisition_failed"
	RateReasonWithinCacheWindow RateReason = "within_cache_window"
	RateReasonRefreshInFlight   RateReason = "refresh_in_flight"
)

// Rate tasa USD -> moneda local (Bs. por 1 USD).
type Rate struct {
	Value      float64
	AcquiredAt time.Time
	Origin     RateOrigin
	Reason     RateReason
}

// IsLive indica si la tasa se obtuvo de una fuente remota en esta llamada.
func (r Rate) IsLive() bool {
	return r.Origin == RateOriginLive
}

// IsStale tasa en caché por un resultado degradado (sin red o fuentes caídas).
func (r Rate) IsStale() bool {
	return r.Origin == RateOriginCached &&
		(r.Reason == RateReasonNoConnectivity || r.Reason == RateReasonAcquisitionFailed)
}

// Cached copia de la tasa marcada como caché con el motivo indicado.
func (r Rate) Cached(reason RateReason) Rate {
	r.Origin = RateOriginCached
	r.Reason = reason
	return r
}
