// Package domhost is a host runtime for sandboxed, multi-language
// WebAssembly components implementing a minimal DOM node contract.
//
// The host discovers each component's typed world (its declared imports
// and exports), links components against each other and against
// host-native functions through explicit bindings, instantiates each
// component into its own isolated sandbox, and dispatches typed calls
// across the host/guest boundary with canonical value marshalling.
//
// Subpackages:
//
//   - schema: world text parsing and the structural value-type model
//   - registry: loaded component records and export verification
//   - linker: explicit import binding and composition graph resolution
//   - engine: wazero-backed per-instance sandboxes
//   - runtime: instantiation sessions and the top-level facade
//   - dispatch: typed call dispatch and trap isolation
//   - abi: the canonical linear-memory value codec
//   - hostbridge: host-native functions with the guest call contract
//   - resource: host-side handle tables for opaque guest references
//   - manifest: HCL composition manifests
//   - wasm: core module binary decoding and encoding
package domhost
