// Package masherr defines the typed error kinds a stage service raises
// while moving a job through the pipeline (spec §7). Each kind wraps an
// errutils.CustomError template so every occurrence is formatted
// consistently, and each satisfies error via Error().
package masherr

import (
	"errors"

	"oss.mash.dev/mash/errutils"
)

// Sentinel kinds for errors.Is matching against a job's terminal error.
var (
	ErrValidation         = errors.New("masherr: validation error")
	ErrTransport          = errors.New("masherr: transport error")
	ErrRemoteUnavailable  = errors.New("masherr: remote unavailable")
	ErrCredentialsTimeout = errors.New("masherr: credentials request timed out")
	ErrFatalConfig        = errors.New("masherr: fatal configuration error")
	ErrJobAlreadyExists   = errors.New("masherr: job already exists")
	ErrJobNotFound        = errors.New("masherr: job not found")
	ErrVersionExpression  = errors.New("masherr: ambiguous version expression")
	ErrJobRetire          = errors.New("masherr: failed to retire job")
)

var validationTpl = errutils.NewCustomError("validation error: job %s: %s")
var transportTpl = errutils.NewCustomError("transport error: %s: %s")
var remoteTpl = errutils.NewCustomError("remote unavailable: job %s: %s")
var credsTimeoutTpl = errutils.NewCustomError("credentials request for job %s timed out after %s")
var fatalConfigTpl = errutils.NewCustomError("fatal configuration error: %s")
var jobExistsTpl = errutils.NewCustomError("job %s already exists, ignoring")
var jobNotFoundTpl = errutils.NewCustomError("job %s not found, ignoring delete")
var versionExprTpl = errutils.NewCustomError("version expression %q uses '=' which is ambiguous, use one of =,!=,<,<=,>,>=")
var jobRetireTpl = errutils.NewCustomError("failed to retire job %s: %s")

// wrapped pairs a sentinel kind with a formatted message so errors.Is still
// matches the kind while Error() carries job-specific detail.
type wrapped struct {
	kind error
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

// ValidationError rejects a message that failed schema or field validation;
// the originator is notified, the message is dropped.
func ValidationError(jobID, detail string) error {
	return &wrapped{kind: ErrValidation, msg: validationTpl.Err(jobID, detail).Error()}
}

// TransportError is logged, retried once, and then marks the pass failed.
func TransportError(op, detail string) error {
	return &wrapped{kind: ErrTransport, msg: transportTpl.Err(op, detail).Error()}
}

// RemoteUnavailable signals a cloud or build-service fault; the pass is
// failed but the job is retained if it is a nonstop job.
func RemoteUnavailable(jobID, detail string) error {
	return &wrapped{kind: ErrRemoteUnavailable, msg: remoteTpl.Err(jobID, detail).Error()}
}

// CredentialsTimeoutError means the credentials reply did not arrive within
// the configured deadline; the pass becomes EXCEPTION.
func CredentialsTimeoutError(jobID string, timeout string) error {
	return &wrapped{kind: ErrCredentialsTimeout, msg: credsTimeoutTpl.Err(jobID, timeout).Error()}
}

// FatalConfigError causes the service to exit non-zero at startup.
func FatalConfigError(detail string) error {
	return &wrapped{kind: ErrFatalConfig, msg: fatalConfigTpl.Err(detail).Error()}
}

// JobAlreadyExistsError is raised on a duplicate job id during admission;
// callers should warn and ignore, not fail the pass.
func JobAlreadyExistsError(jobID string) error {
	return &wrapped{kind: ErrJobAlreadyExists, msg: jobExistsTpl.Err(jobID).Error()}
}

// JobNotFoundError is raised on delete of an unknown job id; callers should
// warn and treat the delete as a no-op (idempotent).
func JobNotFoundError(jobID string) error {
	return &wrapped{kind: ErrJobNotFound, msg: jobNotFoundTpl.Err(jobID).Error()}
}

// VersionExpressionError is raised when a condition uses the ambiguous '='
// operator instead of one of =,!=,<,<=,>,>=.
func VersionExpressionError(expr string) error {
	return &wrapped{kind: ErrVersionExpression, msg: versionExprTpl.Err(expr).Error()}
}

// JobRetireError means the OBS watcher could not retire (serialize + remove)
// a completed job; the pass is considered failed, no downstream publication.
func JobRetireError(jobID, detail string) error {
	return &wrapped{kind: ErrJobRetire, msg: jobRetireTpl.Err(jobID, detail).Error()}
}
