package sheet

import "errors"

var (
	// ErrInvalidRange is returned when a range is not valid A1 notation.
	ErrInvalidRange = errors.New("invalid A1 range")

	// ErrInvalidCell is returned when a cell address is not a single A1 cell.
	ErrInvalidCell = errors.New("invalid A1 cell")

	// ErrSheetNotFound is returned when a range names a sheet tab that
	// does not exist.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown sheet backend")
)
