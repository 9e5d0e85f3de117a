// Package logx is a thin structured-logging layer over zerolog.
//
// Console output is human readable with a short file:line caller; the file
// sink writes JSON and rotates by size (lumberjack). Loggers obtained from a
// Service follow its Apply calls, so level and sinks can change at runtime.
package logx
