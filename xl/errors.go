package xl

import "fmt"

// Kind names a stable, caller-facing error category. Kind strings are part
// of the library's contract and must not change across releases.
type Kind string

const (
	KindInvalidZip    Kind = "invalid_zip"
	KindInvalidXLSX   Kind = "invalid_xlsx"
	KindTemplateParse Kind = "template_parse"
	KindTemplateEval  Kind = "template_eval"
	KindDataParse     Kind = "data_parse"
	KindInternal      Kind = "internal"
)

// RenderError is the error type returned from every exported operation that
// can fail for a stable, documented reason. Kind is meant to be switched on;
// the message is for humans.
type RenderError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RenderError) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, cause error) *RenderError {
	return &RenderError{Kind: k, Msg: msg, Err: cause}
}

func Errorf(k Kind, format string, args ...any) *RenderError {
	return newErr(k, fmt.Sprintf(format, args...), nil)
}

func Wrapf(k Kind, cause error, format string, args ...any) *RenderError {
	return newErr(k, fmt.Sprintf(format, args...), cause)
}

// Warning is a recoverable, non-fatal condition surfaced on a side channel
// alongside the rendered output. Warnings never fail a render.
type Warning struct {
	Sheet   string // sheet display name, empty if workbook-level
	Cell    string // cell ref, empty if not cell-scoped
	Message string
}

func (w Warning) String() string {
	switch {
	case w.Sheet != "" && w.Cell != "":
		return fmt.Sprintf("%s!%s: %s", w.Sheet, w.Cell, w.Message)
	case w.Sheet != "":
		return fmt.Sprintf("%s: %s", w.Sheet, w.Message)
	default:
		return w.Message
	}
}

// WarningSink collects warnings during a single render invocation.
type WarningSink struct {
	Warnings []Warning
}

func (s *WarningSink) Warnf(sheet, cell, format string, args ...any) {
	s.Warnings = append(s.Warnings, Warning{
		Sheet:   sheet,
		Cell:    cell,
		Message: fmt.Sprintf(format, args...),
	})
}
