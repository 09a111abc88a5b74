// Package rate provides Redis fixed-window request counters shared by every
// server instance.
//
// # Window semantics
//
// INCR then EXPIRE on the first hit of a window. Keys are
// "<prefix>:rl:<key>".
package rate
