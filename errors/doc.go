// Package errors provides the structured error taxonomy shared by the
// host runtime.
//
// Every error carries a Phase (which pipeline stage failed) and a Kind
// (what failed), plus the component id and slot name when known. Errors
// compare with errors.Is by phase and kind, so callers match on the
// taxonomy rather than on message text.
package errors
