package domain

import "errors"

var (
	// ErrInvalidIdentity indicates a malformed repository locator
	ErrInvalidIdentity = errors.New("invalid repository identity")

	// ErrUnauthorized indicates a missing or invalid credential or session
	ErrUnauthorized = errors.New("unauthorized")

	// ErrJobNotFound indicates an unknown job id
	ErrJobNotFound = errors.New("job not found")

	// ErrCloneFailure indicates the repository could not be fetched.
	// Messages wrapped with it are always credential-free.
	ErrCloneFailure = errors.New("clone failed")

	// ErrFileSkipped indicates a single file was excluded from chunking. It never fails a job.
	ErrFileSkipped = errors.New("file skipped")

	// ErrIndexingFailure indicates the indexing adapter failed during replace-ingest
	ErrIndexingFailure = errors.New("indexing failed")

	// ErrNotReady indicates the job has not reached the completed state
	ErrNotReady = errors.New("job not ready")
)
