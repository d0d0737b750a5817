package obswatcher

import (
	"strconv"
	"strings"

	"oss.mash.dev/mash/masherr"
)

// Operator is one of the version comparison operators a condition may use.
// '=' is deliberately absent: spec §4.3 rejects it as ambiguous.
type Operator string

const (
	OpNotEqual        Operator = "!="
	OpLess            Operator = "<"
	OpLessOrEqual     Operator = "<="
	OpGreater         Operator = ">"
	OpGreaterOrEqual  Operator = ">="
	opAmbiguousEquals Operator = "="
)

// ParseOperator splits a version expression like ">=1.42.1" into its
// operator and version, rejecting the bare '=' operator per spec §4.3 with
// a VersionExpressionError.
//
// Generalizes golly's semver comparison (semver/utils.go compare) from
// fixed major.minor.patch triples to the arbitrary-length dotted-integer
// versions OBS packages use.
func ParseOperator(expr string) (Operator, string, error) {
	for _, op := range []Operator{OpGreaterOrEqual, OpLessOrEqual, OpNotEqual, OpGreater, OpLess} {
		if strings.HasPrefix(expr, string(op)) {
			return op, strings.TrimSpace(strings.TrimPrefix(expr, string(op))), nil
		}
	}
	if strings.HasPrefix(expr, string(opAmbiguousEquals)) {
		return "", "", masherr.VersionExpressionError(expr)
	}
	// No operator prefix: the bare version is used as-is by image conditions
	// with an implicit equality check performed by the caller, never through
	// this ambiguous-operator path.
	return "", strings.TrimSpace(expr), nil
}

// CompareDotted compares two arbitrary-length dotted-integer version
// strings segment by segment, treating a missing trailing segment as 0
// (so "1.2" == "1.2.0"). Non-numeric segments compare lexically.
func CompareDotted(v1, v2 string) int {
	s1 := strings.Split(v1, ".")
	s2 := strings.Split(v2, ".")
	n := len(s1)
	if len(s2) > n {
		n = len(s2)
	}
	for i := 0; i < n; i++ {
		var a, b string
		if i < len(s1) {
			a = s1[i]
		}
		if i < len(s2) {
			b = s2[i]
		}
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		if aerr == nil && berr == nil {
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
			continue
		}
		if a != b {
			return strings.Compare(a, b)
		}
	}
	return 0
}

// Satisfies evaluates `actual <op> constraint` for the dotted-integer
// version semantics above.
func Satisfies(actual string, op Operator, constraint string) bool {
	cmp := CompareDotted(actual, constraint)
	switch op {
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	default:
		return cmp == 0
	}
}
