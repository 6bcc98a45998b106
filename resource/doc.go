// Package resource provides host-side handle tables. A host function
// that hands a guest access to a host object inserts the object into a
// table and passes the returned handle across the boundary; the guest
// only ever sees the u32.
package resource
