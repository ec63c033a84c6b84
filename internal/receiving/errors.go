package receiving

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateOrder   = errors.New("la orden ya forma parte de la sesión")
	ErrBoxOccupied      = errors.New("la caja está ocupada por otro folio")
	ErrSessionEnded     = errors.New("la sesión de recepción terminó")
	ErrNoSession        = errors.New("no hay sesión de recepción activa")
	ErrSessionActive    = errors.New("ya existe una sesión de recepción activa")
	ErrStaleDraft       = errors.New("el borrador pertenece a otra base o expiró")
	ErrNoPendingCommit  = errors.New("no hay una confirmación pendiente de reintento")
	ErrUnknownSelection = errors.New("la selección de caja no existe o ya fue atendida")
	ErrAssignRejected   = errors.New("el servidor rechazó la asignación a caja")
	ErrNotComplete      = errors.New("la recepción no está completa")
	ErrCommitPending    = errors.New("hay una confirmación pendiente; reintenta antes de modificar la recepción")
)

// ValidationError: rejected locally, never sent to the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CapacityError: the units of a scan not covered by a reservation do not fit
// the article's receiving lines. Nothing was reserved or received.
type CapacityError struct {
	ArticleID string
	Surplus   int
	Capacity  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%d unidades exceden lo pendiente (%d) del artículo %s", e.Surplus, e.Capacity, e.ArticleID)
}

// NotFoundError: the code matches no working line and no reservation.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q no encontrado", e.What, e.Key)
}

// TransientError wraps a transport failure. The operation may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// CommitError: a group submission failed. Receipts already issued stay valid
// and the local backup is kept for Retry.
type CommitError struct {
	OrderID       string
	ReceiptFolios []string
	Err           error
}

func (e *CommitError) Error() string {
	msg := fmt.Sprintf("falló la confirmación de la orden %s: %v", e.OrderID, e.Err)
	if len(e.ReceiptFolios) > 0 {
		msg += " (recibos ya emitidos: " + strings.Join(e.ReceiptFolios, ", ") + ")"
	}
	return msg + "; el avance se conserva para reintentar"
}

func (e *CommitError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
