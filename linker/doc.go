// Package linker binds component import slots to other components'
// exports or to host functions, verifies signature compatibility, and
// finalizes the composition into an immutable graph with a cycle-free
// instantiation order.
package linker
