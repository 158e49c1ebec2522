// Package query parses graph queries and evaluates them over time-stamped
// records.
//
// Label patterns (the dateformat option, the group name format and the
// engine's default) accept either a Go time layout ("02.01.06 15:04") or a
// .NET custom date pattern ("dd.MM.yy HH\:mm"). A pattern is read as .NET when
// it contains one of dd, MM, yy, HH, hh, mm or ss.
package query
