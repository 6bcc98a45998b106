// Package registry holds one record per loaded component binary: its
// decoded core module, declared world, provenance, and the binding
// state of each import slot. Registration validates that the binary's
// export and import tables structurally match the embedded world.
package registry
