package usecase

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal pipeline failure.
type Kind string

const (
	KindConfiguration       Kind = "ConfigurationError"
	KindInvalidInput        Kind = "InvalidInput"
	KindStorageWrite        Kind = "StorageWriteError"
	KindHistoryFetch        Kind = "HistoryFetchError"
	KindCompletionTransport Kind = "CompletionTransportError"
	KindCompletionParse     Kind = "CompletionParseError"
	KindSynthesis           Kind = "SynthesisError"
	KindPublish             Kind = "PublishError"
)

// Flow names one request-to-response path through the pipeline.
type Flow string

const (
	FlowIngest     Flow = "ingest"
	FlowComplete   Flow = "complete"
	FlowSynthesize Flow = "synthesize"
)

// Stages at which a flow can fail.
const (
	stageConfigure  = "configure"
	stageValidate   = "validate"
	stageAppend     = "append"
	stageHistory    = "history"
	stageComplete   = "complete"
	stageRecord     = "record"
	stageSynthesize = "synthesize"
	stagePublish    = "publish"
)

// Error is the single failure a flow reports. It carries the failing flow
// and stage alongside the underlying cause.
type Error struct {
	Kind  Kind
	Flow  Flow
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s/%s: %s", e.Flow, e.Stage, e.Kind)
	}
	return fmt.Sprintf("usecase: %s/%s: %s: %v", e.Flow, e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Cause returns the underlying cause as a string, or the kind when there is none.
func (e *Error) Cause() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func newError(kind Kind, flow Flow, stage string, err error) *Error {
	return &Error{Kind: kind, Flow: flow, Stage: stage, Err: err}
}

// ConfigurationError reports a missing credential or identifier detected
// before any external call of flow.
func ConfigurationError(flow Flow, err error) *Error {
	return newError(KindConfiguration, flow, stageConfigure, err)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// KindOf returns the kind of the pipeline error wrapped by err.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
