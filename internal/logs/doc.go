// Package logs provides bounded-memory log file tailing shared by the IPC
// server and the CLI.
//
// It supports "last N lines" reads via a negative offset, incremental reads
// from a saved offset, and follow-mode polling with a caller-supplied wait so
// `hackercast logs --follow` can stream the daemon log. Callers pass a
// context so polling stops cleanly when the CLI exits.
package logs
