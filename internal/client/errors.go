package client

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories an external tool call
// can end in.
type ErrorKind int

const (
	KindToolInvocation ErrorKind = iota
	KindUpstreamBlocked
	KindUpstreamBlockedCredentialStore
	KindCredentialStore
	KindCredentialDatabaseNotFound
	KindUpstreamPrecondition
	KindMissingArtifact
	KindSeparationUnavailable
	KindTimeout
)

var kindNames = map[ErrorKind]string{
	KindToolInvocation:                 "TOOL_INVOCATION",
	KindUpstreamBlocked:                "UPSTREAM_BLOCKED",
	KindUpstreamBlockedCredentialStore: "UPSTREAM_BLOCKED_CREDENTIAL_STORE",
	KindCredentialStore:                "CREDENTIAL_STORE",
	KindCredentialDatabaseNotFound:     "CREDENTIAL_DATABASE_NOT_FOUND",
	KindUpstreamPrecondition:           "UPSTREAM_PRECONDITION",
	KindMissingArtifact:                "MISSING_ARTIFACT",
	KindSeparationUnavailable:          "SEPARATION_UNAVAILABLE",
	KindTimeout:                        "TIMEOUT",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is matching against a *ToolError.
var (
	ErrToolInvocation             = errors.New("tool invocation failed")
	ErrUpstreamBlocked            = errors.New("upstream blocked the request")
	ErrCredentialStore            = errors.New("credential store unavailable")
	ErrCredentialDatabaseNotFound = errors.New("credential database not found")
	ErrUpstreamPrecondition       = errors.New("upstream rejected client negotiation")
	ErrMissingArtifact            = errors.New("expected output file missing")
	ErrSeparationUnavailable      = errors.New("no separation engine available")
	ErrTimeout                    = errors.New("tool invocation timed out")
)

func (k ErrorKind) sentinels() []error {
	switch k {
	case KindUpstreamBlocked:
		return []error{ErrUpstreamBlocked}
	case KindUpstreamBlockedCredentialStore:
		return []error{ErrUpstreamBlocked, ErrCredentialStore}
	case KindCredentialStore:
		return []error{ErrCredentialStore}
	case KindCredentialDatabaseNotFound:
		return []error{ErrCredentialDatabaseNotFound}
	case KindUpstreamPrecondition:
		return []error{ErrUpstreamPrecondition}
	case KindMissingArtifact:
		return []error{ErrMissingArtifact}
	case KindSeparationUnavailable:
		return []error{ErrSeparationUnavailable}
	case KindTimeout:
		return []error{ErrTimeout}
	default:
		return []error{ErrToolInvocation}
	}
}

// ToolError is returned by every failing tool interaction. Message is the
// operator-facing text persisted on a failed job.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Stderr  string
	Message string
	cause   error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() []error {
	errs := e.Kind.sentinels()
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// KindOf returns the kind of the first *ToolError in err's chain, or
// KindToolInvocation when there is none.
func KindOf(err error) ErrorKind {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Kind
	}
	return KindToolInvocation
}

func newMissingArtifact(tool, message string) *ToolError {
	return &ToolError{Kind: KindMissingArtifact, Tool: tool, Message: message}
}
