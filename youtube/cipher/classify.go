package cipher

import (
	"regexp"
	"strings"
)

// OpKind identifies one primitive signature operation.
type OpKind int

const (
	// OpReverse reverses the whole character sequence.
	OpReverse OpKind = iota + 1
	// OpSplice removes the first N characters.
	OpSplice
	// OpSwap exchanges element 0 with element N mod length.
	OpSwap
)

func (k OpKind) String() string {
	switch k {
	case OpReverse:
		return "reverse"
	case OpSplice:
		return "splice"
	case OpSwap:
		return "swap"
	}
	return "unknown"
}

// opMatcher pairs an operation kind with a structural test over a helper
// function body. The table is ordered: the first match wins. New obfuscator
// shapes are supported by appending matchers, not by touching the compiler.
type opMatcher struct {
	kind  OpKind
	match func(body string) bool
}

var swapBodyRe = regexp.MustCompile(`[a-zA-Z0-9$_]+\[0\]\s*=\s*[a-zA-Z0-9$_]+\[[a-zA-Z0-9$_]+(?:%[a-zA-Z0-9$_]+\.length)?\]`)

var opMatchers = []opMatcher{
	{OpReverse, func(body string) bool {
		return strings.Contains(body, ".reverse()")
	}},
	{OpSwap, func(body string) bool {
		// Exchange of arg[0] with arg[index] through a temporary variable.
		return strings.Contains(body, "var ") && swapBodyRe.MatchString(body)
	}},
	{OpSplice, func(body string) bool {
		return strings.Contains(body, ".splice(")
	}},
}

// classify maps one helper function body to a primitive operation kind.
// Classification never guesses: an unmatched body reports false and only
// becomes an error if the decipher program calls that helper.
func classify(body string) (OpKind, bool) {
	for _, m := range opMatchers {
		if m.match(body) {
			return m.kind, true
		}
	}
	return 0, false
}

var helperMemberRe = regexp.MustCompile(`([a-zA-Z0-9$_]{1,3})\s*:\s*function\s*\(([^)]*)\)\s*\{`)

// classifyHelpers walks the members of the operations helper object and
// builds the key -> operation table. Member bodies are extracted with the
// brace scanner so nested braces inside a member cannot desync the walk.
func classifyHelpers(objBody string) (map[string]OpKind, error) {
	table := make(map[string]OpKind)
	offset := 0
	for offset < len(objBody) {
		loc := helperMemberRe.FindStringSubmatchIndex(objBody[offset:])
		if loc == nil {
			break
		}
		key := objBody[offset+loc[2] : offset+loc[3]]
		body, end, err := ExtractBlock(objBody, offset+loc[1]-1)
		if err != nil {
			return nil, err
		}
		if kind, ok := classify(body); ok {
			table[key] = kind
		}
		offset = end
	}
	if len(table) == 0 {
		return nil, newPatternDrift(probeHelper)
	}
	return table, nil
}
