// Package runtime is the host facade. It wires the registry, linker,
// host bridge, engine and dispatcher together, instantiates finalized
// composition graphs in dependency order and manages instance
// lifetimes through sessions.
package runtime
