package purchasing

import "fmt"

// InvalidStateTransitionError rejects an operation the batch status does
// not allow.
type InvalidStateTransitionError struct {
	BatchID   int64
	Status    BatchStatus
	Operation string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("batch %d is %s, %s is not allowed", e.BatchID, e.Status, e.Operation)
}
