package domain

import "errors"

// Error kinds shared by every component. Component errors wrap one of these
// with %w so callers can branch on the kind with errors.Is.
var (
	ErrTransientExternal = errors.New("transient external failure")
	ErrValidation        = errors.New("validation failure")
	ErrConsistency       = errors.New("consistency violation")
	ErrStorage           = errors.New("irrecoverable storage failure")
)

type FailureKind string

const (
	KindTransientExternal FailureKind = "transient_external_failure"
	KindValidation        FailureKind = "validation_failure"
	KindConsistency       FailureKind = "consistency_violation"
	KindStorage           FailureKind = "irrecoverable_storage_failure"
	KindInternal          FailureKind = "internal"
)

// Kind classifies err into one of the failure kinds.
func Kind(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientExternal):
		return KindTransientExternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

// Failure is the structured form of an error reported to users and owners.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Subject string      `json:"subject,omitempty"`
}

func NewFailure(subject string, err error) Failure {
	return Failure{Kind: Kind(err), Message: err.Error(), Subject: subject}
}
