// Package wasm is a minimal core module codec. It decodes the MVP
// subset a component binary may use, gives access to exports, imports
// and named custom sections, and can re-encode a module built in
// memory. Execution is left to the engine package.
package wasm
