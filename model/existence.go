package model

import "fmt"

type existenceState int

const (
	stateAbsent existenceState = iota + 1
	statePresent
	stateIndeterminate
)

// Existence is the three-valued answer to "does this remote path exist".
//
// It is deliberately not a bool: an indeterminate answer has to be handled
// explicitly by the caller. The zero value is indeterminate.
type Existence struct {
	state  existenceState
	kind   EntryKind
	reason string
}

// Present is a definite "yes" for an object of the given kind.
func Present(kind EntryKind) Existence {
	return Existence{state: statePresent, kind: kind}
}

// Absent is a definite "no".
func Absent() Existence {
	return Existence{state: stateAbsent}
}

// Indeterminate means the query gave no trustworthy answer.
func Indeterminate(reason string) Existence {
	if reason == "" {
		reason = "unknown"
	}
	return Existence{state: stateIndeterminate, reason: reason}
}

// Known returns the definite answer. ok is false for an indeterminate result.
func (e Existence) Known() (exists bool, ok bool) {
	switch e.state {
	case statePresent:
		return true, true
	case stateAbsent:
		return false, true
	default:
		return false, false
	}
}

func (e Existence) IsPresent() bool { return e.state == statePresent }

func (e Existence) IsAbsent() bool { return e.state == stateAbsent }

func (e Existence) IsIndeterminate() bool {
	return e.state != statePresent && e.state != stateAbsent
}

// Kind is the object kind of a present result, zero otherwise.
func (e Existence) Kind() EntryKind {
	if e.state != statePresent {
		return 0
	}
	return e.kind
}

// Reason explains an indeterminate result.
func (e Existence) Reason() string {
	if !e.IsIndeterminate() {
		return ""
	}
	if e.reason == "" {
		return "unknown"
	}
	return e.reason
}

// Satisfies reports whether the result definitely meets the expectation.
func (e Existence) Satisfies(expect Expectation) bool {
	switch expect {
	case ExpectPresent:
		return e.IsPresent()
	case ExpectAbsent:
		return e.IsAbsent()
	default:
		return true
	}
}

func (e Existence) String() string {
	switch e.state {
	case statePresent:
		return fmt.Sprintf("present(%s)", e.kind)
	case stateAbsent:
		return "absent"
	default:
		return fmt.Sprintf("indeterminate(%s)", e.Reason())
	}
}

// Expectation is the caller's hint about what an existence query should
// return after a mutating call.
type Expectation int

const (
	ExpectNothing Expectation = iota
	ExpectPresent
	ExpectAbsent
)

func (x Expectation) String() string {
	switch x {
	case ExpectPresent:
		return "present"
	case ExpectAbsent:
		return "absent"
	default:
		return "none"
	}
}
