package docbind

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes (exported consts for IDE completion and type safety by convention)
const (
	CodeUnsupportedShape        = "unsupported_shape"
	CodeInvalidIdentityField    = "invalid_identity_field"
	CodeUnknownEnumOrdinal      = "unknown_enum_ordinal"
	CodeUnsupportedMapKeyType   = "unsupported_map_key_type"
	CodeNestedRecordDecode      = "nested_record_decode"
	CodeConflictingRegistration = "conflicting_registration"
	CodeUnknownDocumentType     = "unknown_document_type"
	CodeUnencodableType         = "unencodable_type"
	// Stored value cannot be represented by the declared Go type.
	CodeTypeMismatch = "type_mismatch"
)

// Sentinels matched by errors.Is against any *Error carrying the same code.
var (
	ErrUnsupportedShape        = errors.New("docbind: unsupported shape")
	ErrInvalidIdentityField    = errors.New("docbind: invalid identity field")
	ErrUnknownEnumOrdinal      = errors.New("docbind: unknown enum ordinal")
	ErrUnsupportedMapKeyType   = errors.New("docbind: unsupported map key type")
	ErrNestedRecordDecode      = errors.New("docbind: nested record decode failed")
	ErrConflictingRegistration = errors.New("docbind: conflicting registration")
	ErrUnknownDocumentType     = errors.New("docbind: unknown document type")
	ErrUnencodableType         = errors.New("docbind: unencodable type")
	ErrTypeMismatch            = errors.New("docbind: type mismatch")
)

var sentinels = map[string]error{
	CodeUnsupportedShape:        ErrUnsupportedShape,
	CodeInvalidIdentityField:    ErrInvalidIdentityField,
	CodeUnknownEnumOrdinal:      ErrUnknownEnumOrdinal,
	CodeUnsupportedMapKeyType:   ErrUnsupportedMapKeyType,
	CodeNestedRecordDecode:      ErrNestedRecordDecode,
	CodeConflictingRegistration: ErrConflictingRegistration,
	CodeUnknownDocumentType:     ErrUnknownDocumentType,
	CodeUnencodableType:         ErrUnencodableType,
	CodeTypeMismatch:            ErrTypeMismatch,
}

// Error is returned by every registry, decode and encode operation.
// It is terminal for the call that produced it.
type Error struct {
	Code string // One of the codes listed above.
	// Path locates the offending field within the document, JSON Pointer
	// style (for example: /posts/2/title). Empty means the record itself.
	Path string
	// Type is the Go type being decoded or encoded, when known.
	Type string
	// Document is the document (class) name, when known.
	Document string
	Message  string
	Cause    error // Optional: underlying error.
}

func (e *Error) Error() string {
	b := &strings.Builder{}
	b.WriteString("docbind: ")
	b.WriteString(e.Code)
	path := e.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(b, " at %s", path)
	switch {
	case e.Document != "" && e.Type != "":
		fmt.Fprintf(b, " (document %s, type %s)", e.Document, e.Type)
	case e.Document != "":
		fmt.Fprintf(b, " (document %s)", e.Document)
	case e.Type != "":
		fmt.Fprintf(b, " (type %s)", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// AsError extracts the outermost *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(code, typ, msg string) *Error {
	return &Error{Code: code, Type: typ, Message: msg}
}

// atPath prefixes seg to the path of err when err is an *Error. The error is
// copied so shared values are never mutated.
func atPath(err error, seg string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Path = "/" + seg + cp.Path
	return &cp
}

// inDocument fills in the document name when err does not carry one yet.
func inDocument(err error, name string) error {
	e, ok := err.(*Error)
	if !ok || e.Document != "" {
		return err
	}
	cp := *e
	cp.Document = name
	return &cp
}
