// Package logx wraps zerolog with a small field-based Logger.
//
// Console output is human readable with a short caller, the optional log
// file gets one JSON object per line, and Service.Apply swaps level and
// sinks in place so loggers handed out at startup follow config reloads.
package logx
