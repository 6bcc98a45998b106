// Package abi converts host Go values to and from the flat core-wasm
// calling convention shared by every component boundary.
//
// A scalar crosses the boundary as a single core value. Everything
// else is packed into a little-endian block in the callee's linear
// memory and crosses as an i32 pointer to that block:
//
//	string       [len u32][utf-8 bytes]
//	list<T>      [count u32][count aligned T slots]
//	record       field slots in declared order, each field-aligned
//	variant      [discriminant u32][payload slot of the chosen case]
//	option<T>    variant { none, some(T) }
//	result<A,B>  variant { ok(A), err(B) }
//
// Inside a block, a string or list field is a u32 pointer to its own
// block; records and variants nest inline.
package abi
