package cipher

import (
	"regexp"
	"strconv"
	"strings"
)

// Op is one compiled signature operation.
type Op struct {
	Kind OpKind
	Arg  int
}

// Program is an ordered sequence of operations applied to a signature token.
// A program is built once per script version and never mutated afterwards;
// programs built from identical script text compare equal.
type Program []Op

const (
	// maxOperandValue bounds splice counts and swap indexes. Real tokens are
	// well under a few hundred characters; larger operands mean the helper
	// was misclassified.
	maxOperandValue = 512
	// maxProgramOps bounds the program length.
	maxProgramOps = 256
)

// compileSignatureProgram scans the decipher body in source order and emits
// one Op per helper call. A call to a key absent from the table aborts
// compilation: skipping it would yield a syntactically valid but unusable URL.
func compileSignatureProgram(body, alias, param string, table map[string]OpKind) (Program, error) {
	callRe := regexp.MustCompile(
		regexp.QuoteMeta(alias) +
			`(?:\.([a-zA-Z0-9$_]+)|\[(?:"([^"]+)"|'([^']+)')\])` +
			`\(\s*` + regexp.QuoteMeta(param) + `\s*(?:,\s*(\d+)\s*)?\)`)

	var program Program
	for _, m := range callRe.FindAllStringSubmatch(body, -1) {
		key := firstNonEmpty(m[1], m[2], m[3])
		kind, ok := table[key]
		if !ok {
			return nil, newUnsupportedOp(key)
		}
		arg := 0
		if m[4] != "" {
			v, err := strconv.Atoi(m[4])
			if err != nil {
				return nil, newUnsupportedOp(key)
			}
			arg = v
		}
		if arg < 0 || arg > maxOperandValue {
			return nil, newUnsupportedOp(key)
		}
		program = append(program, Op{Kind: kind, Arg: arg})
	}
	if len(program) == 0 {
		return nil, newPatternDrift(probeSigCalls)
	}
	if len(program) > maxProgramOps {
		return nil, newPatternDrift(probeSigCalls)
	}
	return program, nil
}

// String renders a compact, loggable form of the program.
func (p Program) String() string {
	parts := make([]string, 0, len(p))
	for _, op := range p {
		s := op.Kind.String()
		if op.Kind != OpReverse {
			s += "(" + strconv.Itoa(op.Arg) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
