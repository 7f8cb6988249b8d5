package models

import "errors"

var (
	// ErrFileNotFound is returned when the document path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrExtractionFailed is returned for unreadable, corrupt or unsupported documents.
	// The document has to be supplied again.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrProviderUnavailable is returned when a model endpoint is unreachable or the
	// model could not be provisioned.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderError is returned when an embedding or generation call fails for a single query.
	ErrProviderError = errors.New("provider error")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrNoDocument is returned when a question is asked before a document is ready.
	ErrNoDocument = errors.New("no document loaded")

	// ErrDocumentSuperseded is returned to callers waiting on a build for a document
	// that was replaced before the build finished.
	ErrDocumentSuperseded = errors.New("document superseded")
)
