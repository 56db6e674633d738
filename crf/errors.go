package crf

import "errors"

// Sentinel errors for the failure classes the engine can report. Callers
// match them with errors.Is; wrapped messages carry the detail.
var (
	// ErrConfig marks contradictory or unsupported configuration, such as
	// an unknown optimizer or inference selection.
	ErrConfig = errors.New("invalid configuration")

	// ErrFormat marks a malformed serialized model: bad header, record
	// count mismatch, or tuple size disagreement.
	ErrFormat = errors.New("malformed model")

	// ErrData marks unusable input data, such as an unknown gold class in
	// a training document.
	ErrData = errors.New("bad input data")

	// ErrNumeric marks NaN or infinite values produced by the objective,
	// likelihood, or gradient.
	ErrNumeric = errors.New("numerical failure")

	// ErrResource marks I/O failures on model files or input documents.
	ErrResource = errors.New("resource failure")
)
