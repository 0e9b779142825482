package batch

import (
	"errors"
	"fmt"
	"strings"

	"heatbatch/internal/model"
)

// Kind classifies a ParseError.
type Kind int

const (
	HeaderError Kind = iota + 1
	FieldCountError
	UnknownMachineError
	UnknownOutputTokenError
	NumericFormatError
	MissingValueError
)

// Sentinels matched by errors.Is against a *ParseError or an *ErrorList.
var (
	ErrHeader         = errors.New("header mismatch")
	ErrFieldCount     = errors.New("wrong field count")
	ErrUnknownMachine = errors.New("unknown machine")
	ErrUnknownOutput  = errors.New("unknown output token")
	ErrNumericFormat  = errors.New("invalid number")
	ErrMissingValue   = errors.New("missing value")
)

func (k Kind) String() string {
	switch k {
	case HeaderError:
		return "HeaderError"
	case FieldCountError:
		return "FieldCountError"
	case UnknownMachineError:
		return "UnknownMachineError"
	case UnknownOutputTokenError:
		return "UnknownOutputTokenError"
	case NumericFormatError:
		return "NumericFormatError"
	case MissingValueError:
		return "MissingValueError"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case HeaderError:
		return ErrHeader
	case FieldCountError:
		return ErrFieldCount
	case UnknownMachineError:
		return ErrUnknownMachine
	case UnknownOutputTokenError:
		return ErrUnknownOutput
	case NumericFormatError:
		return ErrNumericFormat
	case MissingValueError:
		return ErrMissingValue
	}
	return nil
}

// ParseError describes one invalid line of a batch file.
type ParseError struct {
	Kind   Kind
	Line   int
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Kind.sentinel()
}

// ErrorList is every ParseError found in one file, in line order.
type ErrorList struct {
	Source string
	Errors []*ParseError
}

func (l *ErrorList) Error() string {
	var b strings.Builder
	name := l.Source
	if name == "" {
		name = "batch file"
	}
	if len(l.Errors) == 1 {
		fmt.Fprintf(&b, "%s: %s", name, l.Errors[0])
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %d errors", name, len(l.Errors))
	for _, e := range l.Errors {
		fmt.Fprintf(&b, "\n  %s\n    > %s", e, e.Raw)
	}
	return b.String()
}

func (l *ErrorList) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, e := range l.Errors {
		errs[i] = e
	}
	return errs
}

// Diagnostics converts the list for display next to schedule warnings.
func (l *ErrorList) Diagnostics() []model.Diagnostic {
	diags := make([]model.Diagnostic, len(l.Errors))
	for i, e := range l.Errors {
		diags[i] = model.Diagnostic{
			Line:     e.Line,
			Severity: model.SeverityError,
			Message:  e.Kind.String() + ": " + e.Reason,
			Raw:      e.Raw,
		}
	}
	return diags
}

// Diagnostics extracts display diagnostics from any error returned by the parser.
func Diagnostics(err error) []model.Diagnostic {
	if err == nil {
		return nil
	}
	var list *ErrorList
	if errors.As(err, &list) {
		return list.Diagnostics()
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return (&ErrorList{Errors: []*ParseError{pe}}).Diagnostics()
	}
	return []model.Diagnostic{{Severity: model.SeverityError, Message: err.Error()}}
}
