package preprocess

import "errors"

var (
	// ErrSchemaMismatch: a row lacks a declared column, carries a value of
	// the wrong kind, or (strict schemas) has an undeclared column.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnmappedCategory: an ordinal column holds a value with no rank.
	ErrUnmappedCategory = errors.New("unmapped category")
	// ErrRowAlignment: blocks to be assembled disagree on row count.
	ErrRowAlignment = errors.New("row alignment")
	// ErrArtifactVersionMismatch: artifacts were fitted under another schema
	// version or do not match the pipeline's layout.
	ErrArtifactVersionMismatch = errors.New("artifact version mismatch")

	ErrEmptyRecordSet   = errors.New("empty record set")
	ErrNoObservedValues = errors.New("no observed values")
)
