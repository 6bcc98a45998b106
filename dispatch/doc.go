// Package dispatch executes typed calls into component instances. It
// validates arity and argument types host-side, marshals values
// through the canonical layout, converts guest traps into structured
// errors, bounds reentrant call depth, and poisons instances whose
// guest memory a trap may have corrupted.
package dispatch
