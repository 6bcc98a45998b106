// Package schema parses and represents worlds: the typed interface
// contract a component declares, consisting of named import and export
// function signatures over a structural value-type model.
//
// Types are compared structurally. Two independently compiled
// components agree on a type exactly when its shape matches; there is
// no nominal typing across component boundaries.
package schema
