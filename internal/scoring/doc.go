// Package scoring turns raw product attributes into comparable scores.
//
// Every function here is pure: given the same inputs it returns the same
// output and it never fails. Missing or malformed inputs resolve to
// documented neutral defaults instead of errors.
package scoring
