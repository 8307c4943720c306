package cipher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The n-transform vocabulary extends the signature primitives with index
// arithmetic against the input length, conditional reversal and character
// substitution tables. The catalog below is a maintained table, not a frozen
// grammar: when the obfuscator drifts, new idioms are appended here.

type nOpKind int

const (
	nReverse nOpKind = iota + 1
	nReverseIfOdd
	nRotate
	nSplice
	nSwap
	nAlphabetShift
	nCharShift
)

func (k nOpKind) String() string {
	switch k {
	case nReverse:
		return "reverse"
	case nReverseIfOdd:
		return "reverse-if-odd"
	case nRotate:
		return "rotate"
	case nSplice:
		return "splice"
	case nSwap:
		return "swap"
	case nAlphabetShift:
		return "alphabet-shift"
	case nCharShift:
		return "char-shift"
	}
	return "unknown"
}

// nInstr is one compiled n-transform instruction.
type nInstr struct {
	Kind  nOpKind
	Arg   int
	Table string
}

// NProgram is an ordered n-transform instruction sequence.
type NProgram []nInstr

const (
	// maxNBodyBytes rejects pathological bodies before any matching work.
	maxNBodyBytes = 100_000
	// maxNInstructions bounds the compiled program.
	maxNInstructions = 64
	// defaultStepBudget bounds execution; each instruction costs at least the
	// length of the token it touches.
	defaultStepBudget = 4096
)

// nIdiom is one recognized source idiom. Matchers are tried over the whole
// body; matches are replayed in source order. More specific idioms come first
// so their text is consumed before a general matcher can claim it.
//
// compile sees the whole body so it can validate context; it may claim extra
// spans beyond the regex match. Returning ok=false leaves the match
// unclaimed, and unclaimed non-glue text fails compilation below.
type nIdiom struct {
	name    string
	re      *regexp.Regexp
	compile func(body string, m []string, loc []int) (nInstr, [][2]int, bool)
}

var nIdioms = []nIdiom{
	{
		name: "conditional-reverse",
		re:   regexp.MustCompile(`if\s*\(\s*[a-zA-Z0-9$_]+\.length\s*%\s*2[^)]*\)\s*[a-zA-Z0-9$_]+\.reverse\(\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			return nInstr{Kind: nReverseIfOdd}, nil, true
		},
	},
	{
		name: "reverse",
		re:   regexp.MustCompile(`[a-zA-Z0-9$_]+\.reverse\(\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			return nInstr{Kind: nReverse}, nil, true
		},
	},
	{
		name: "splice",
		re:   regexp.MustCompile(`[a-zA-Z0-9$_]+\.splice\(0\s*,\s*(\d+)\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			v, err := strconv.Atoi(m[1])
			if err != nil || v > maxOperandValue {
				return nInstr{}, nil, false
			}
			return nInstr{Kind: nSplice, Arg: v}, nil, true
		},
	},
	{
		name: "rotate-right",
		re:   regexp.MustCompile(`([a-zA-Z0-9$_]+)\.unshift\(\s*[a-zA-Z0-9$_]+\.pop\(\)\s*\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			return nInstr{Kind: nRotate, Arg: 1}, nil, true
		},
	},
	{
		name: "rotate-left",
		re:   regexp.MustCompile(`([a-zA-Z0-9$_]+)\.push\(\s*[a-zA-Z0-9$_]+\.shift\(\)\s*\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			return nInstr{Kind: nRotate, Arg: -1}, nil, true
		},
	},
	{
		name: "swap-mod-length",
		re:   regexp.MustCompile(`var\s+[a-zA-Z0-9$_]+\s*=\s*([a-zA-Z0-9$_]+)\[0\];\s*[a-zA-Z0-9$_]+\[0\]\s*=\s*[a-zA-Z0-9$_]+\[(\d+)\s*%\s*[a-zA-Z0-9$_]+\.length\]`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			v, err := strconv.Atoi(m[2])
			if err != nil || v > maxOperandValue {
				return nInstr{}, nil, false
			}
			return nInstr{Kind: nSwap, Arg: v}, nil, true
		},
	},
	{
		// The alphabet literal alone proves nothing: real bodies carry long
		// inert strings (the try/catch marker, base64 blobs). The idiom only
		// fires when the split alphabet is actually indexed mod its own
		// length against the token, and that usage is claimed too.
		name: "alphabet-substitute",
		re:   regexp.MustCompile(`var\s+([a-zA-Z0-9$_]+)\s*=\s*"([A-Za-z0-9+/\-_]{16,})"\.split\(""\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			name := regexp.QuoteMeta(m[1])
			useRe := regexp.MustCompile(`(?:for\s*\([^)]*\)\s*)?[a-zA-Z0-9$_]+\[[^;]*\]\s*=\s*` + name + `\[[^;]*%\s*` + name + `\.length\]`)
			use := useRe.FindStringIndex(body)
			if use == nil {
				return nInstr{}, nil, false
			}
			return nInstr{Kind: nAlphabetShift, Table: m[2]}, [][2]int{{use[0], use[1]}}, true
		},
	},
	{
		name: "charcode-shift",
		re:   regexp.MustCompile(`String\.fromCharCode\(\s*[a-zA-Z0-9$_]+\.charCodeAt\(0\)\s*([+-])\s*(\d+)\s*\)`),
		compile: func(body string, m []string, loc []int) (nInstr, [][2]int, bool) {
			v, err := strconv.Atoi(m[2])
			if err != nil || v > 127 {
				return nInstr{}, nil, false
			}
			if m[1] == "-" {
				v = -v
			}
			return nInstr{Kind: nCharShift, Arg: v}, nil, true
		},
	},
}

type nMatch struct {
	pos   int
	end   int
	instr nInstr
}

// Statement glue that may legally remain between claimed idioms: the
// split/join frame, bare declarations, the swap tail assignment, an indexed
// lvalue whose rvalue was claimed. Order matters: join-return strips before
// the plain return pattern.
var nInertPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9$_]+\s*=\s*[a-zA-Z0-9$_]+\.split\(""\)`),
	regexp.MustCompile(`return\s+[a-zA-Z0-9$_]+\.join\(""\)`),
	regexp.MustCompile(`return\s+[a-zA-Z0-9$_]+`),
	regexp.MustCompile(`var\s+[a-zA-Z0-9$_]+`),
	regexp.MustCompile(`[a-zA-Z0-9$_]+\[\d+\s*%\s*[a-zA-Z0-9$_]+\.length\]\s*=\s*[a-zA-Z0-9$_]+`),
	regexp.MustCompile(`[a-zA-Z0-9$_]+\[\d+\]\s*=`),
}

var nGlueChars = regexp.MustCompile(`[{}();,\s]+`)

// unclaimedText returns the body text outside every claimed span.
func unclaimedText(body string, claimed [][2]int) string {
	mask := make([]bool, len(body))
	for _, c := range claimed {
		for i := c[0]; i < c[1] && i < len(body); i++ {
			if i >= 0 {
				mask[i] = true
			}
		}
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if !mask[i] {
			b.WriteByte(body[i])
		}
	}
	return b.String()
}

// residualIsInert reports whether the unclaimed text contains nothing but
// statement glue. Anything else is a transform the catalog does not know.
func residualIsInert(residual string) bool {
	s := residual
	for _, re := range nInertPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return nGlueChars.ReplaceAllString(s, "") == ""
}

// compileNTransform recognizes the bounded idiom vocabulary inside the
// n-transform body and produces an instruction sequence in source order.
// The policy is recognize-or-fail: after all idiom matches are claimed, any
// residual text beyond statement glue fails compilation, because executing a
// partially understood transform would corrupt the token silently.
func compileNTransform(body string) (NProgram, error) {
	if len(body) > maxNBodyBytes {
		return nil, newPatternDrift(probeNBody)
	}

	var matches []nMatch
	claimed := make([][2]int, 0, 8)
	for _, idiom := range nIdioms {
		for _, loc := range idiom.re.FindAllStringSubmatchIndex(body, -1) {
			if overlaps(claimed, loc[0], loc[1]) {
				continue
			}
			groups := submatches(body, loc)
			instr, extra, ok := idiom.compile(body, groups, loc)
			if !ok {
				// Not this idiom after all. The text stays unclaimed
				// and the residual check below rejects it.
				continue
			}
			matches = append(matches, nMatch{pos: loc[0], end: loc[1], instr: instr})
			claimed = append(claimed, [2]int{loc[0], loc[1]})
			claimed = append(claimed, extra...)
		}
	}
	if len(matches) == 0 {
		return nil, newPatternDrift(probeNBody)
	}
	if len(matches) > maxNInstructions {
		return nil, newPatternDrift(probeNBody)
	}
	if !residualIsInert(unclaimedText(body, claimed)) {
		return nil, newPatternDrift(probeNBody)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })
	program := make(NProgram, 0, len(matches))
	for _, m := range matches {
		program = append(program, m.instr)
	}
	return program, nil
}

func overlaps(claimed [][2]int, start, end int) bool {
	for _, c := range claimed {
		if start < c[1] && end > c[0] {
			return true
		}
	}
	return false
}

func submatches(s string, loc []int) []string {
	out := make([]string, 0, len(loc)/2)
	for i := 0; i < len(loc); i += 2 {
		if loc[i] < 0 {
			out = append(out, "")
			continue
		}
		out = append(out, s[loc[i]:loc[i+1]])
	}
	return out
}

// applyNProgram executes a compiled n-program against a token under a hard
// step budget. The program comes from untrusted third-party text, so budget
// exhaustion is an expected failure mode, not a crash.
func applyNProgram(token string, program NProgram, budget int) (string, error) {
	if budget <= 0 {
		budget = defaultStepBudget
	}
	r := []rune(token)
	steps := 0
	for _, in := range program {
		cost := len(r)
		if cost < 1 {
			cost = 1
		}
		steps += cost
		if steps > budget {
			return "", newEvalTimeout(steps)
		}
		switch in.Kind {
		case nReverse:
			reverseRunes(r)
		case nReverseIfOdd:
			if len(r)%2 == 1 {
				reverseRunes(r)
			}
		case nRotate:
			r = rotateRunes(r, in.Arg)
		case nSplice:
			if in.Arg < len(r) {
				r = r[in.Arg:]
			} else {
				r = r[:0]
			}
		case nSwap:
			if len(r) > 0 {
				i := in.Arg % len(r)
				r[0], r[i] = r[i], r[0]
			}
		case nAlphabetShift:
			alphabetShift(r, in.Table)
		case nCharShift:
			charShift(r, in.Arg)
		default:
			return "", newUnsupportedOp(in.Kind.String())
		}
	}
	return string(r), nil
}

func reverseRunes(r []rune) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// rotateRunes rotates right for positive k, left for negative.
func rotateRunes(r []rune, k int) []rune {
	n := len(r)
	if n == 0 {
		return r
	}
	k = ((k % n) + n) % n
	if k == 0 {
		return r
	}
	out := make([]rune, 0, n)
	out = append(out, r[n-k:]...)
	out = append(out, r[:n-k]...)
	return out
}

// alphabetShift substitutes each character found in the table with the one at
// (index + position) mod table length. Characters outside the table pass
// through unchanged.
func alphabetShift(r []rune, table string) {
	t := []rune(table)
	if len(t) == 0 {
		return
	}
	for i, c := range r {
		idx := indexRune(t, c)
		if idx < 0 {
			continue
		}
		r[i] = t[(idx+i)%len(t)]
	}
}

func indexRune(t []rune, c rune) int {
	for i, v := range t {
		if v == c {
			return i
		}
	}
	return -1
}

// charShift shifts printable ASCII characters, wrapping within 0x21..0x7e.
func charShift(r []rune, k int) {
	const lo, span = 0x21, 94
	for i, c := range r {
		if c < lo || c >= lo+span {
			continue
		}
		v := (int(c) - lo + k) % span
		if v < 0 {
			v += span
		}
		r[i] = rune(lo + v)
	}
}

// String renders a compact, loggable form of the program.
func (p NProgram) String() string {
	parts := make([]string, 0, len(p))
	for _, in := range p {
		s := in.Kind.String()
		if in.Arg != 0 {
			s += "(" + strconv.Itoa(in.Arg) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}
