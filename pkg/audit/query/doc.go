// Package query implements the read side of the audit log: combined
// filtering with a fixed precedence, date-window lookups, error listings and
// aggregate statistics.
package query
