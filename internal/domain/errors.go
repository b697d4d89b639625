package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// ErrAborted falla del almacén o de la transacción; reintentar la misma operación es seguro.
	ErrAborted = errors.New("operación abortada por el almacén")

	// Tasa de cambio.
	ErrNotInitialized          = errors.New("caché de tasa no inicializado")
	ErrAlreadyInitialized      = errors.New("caché de tasa ya inicializado")
	ErrMalformedPersistedState = errors.New("estado persistido de la tasa corrupto")
	ErrAcquisitionFailed       = errors.New("no se pudo obtener la tasa de ninguna fuente")
	ErrNoConnectivity          = errors.New("sin conexión a internet")
)
