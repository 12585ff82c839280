package ingest

import (
	"errors"
	"fmt"
)

// SchemaError indicates the payload's top-level shape is unusable. It is a
// retryable failure from the user's point of view.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed payload: %s", e.Reason)
}

// IsSchemaError reports whether err (or any error in its chain) is a
// SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

// PartialDataWarning reports items dropped during normalization. The batch
// still succeeds with the valid subset.
type PartialDataWarning struct {
	Dropped int
}

func (w *PartialDataWarning) Error() string {
	return fmt.Sprintf("dropped %d invalid item(s)", w.Dropped)
}
