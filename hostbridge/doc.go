// Package hostbridge exposes host-native Go functions as importable
// component functions. An exposed function carries a schema signature
// and is bound and dispatched exactly like a guest export.
package hostbridge
