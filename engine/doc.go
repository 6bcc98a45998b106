// Package engine builds isolated execution sandboxes on wazero. Each
// sandbox owns a private runtime, so components never share compiled
// code, linear memory or tables. Guest traps are returned as errors at
// the call boundary.
package engine
