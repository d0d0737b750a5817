package errutils

// Package errutils provides a set of utilities for working with errors in Go.

// Example:
//
// The following example demonstrates how to use a `MultiError` to collect several errors:
//
//     package main
//
//     import (
//         "fmt"
//         "oss.mash.dev/mash/errutils"
//     )
//
//     func main() {
//         multiErr := errutils.NewMultiErr(nil)
//         multiErr.Add(someFunction())
//         multiErr.Add(otherFunction())
//         if multiErr.HasErrors() {
//             fmt.Println(multiErr)
//         }
//     }
//
// In the above example, `Add` keeps every non-nil error returned by `someFunction()` and `otherFunction()`.
// The collected errors are then printed using `fmt.Println()`, one per line.
