package cipher

import (
	"regexp"
	"strconv"
	"strings"
)

// scriptFunctions holds the three functions located inside one player script:
// the decipher function, the helper object it calls into, and the n-transform.
type scriptFunctions struct {
	decipherName string
	decipherBody string // body including braces
	param        string // name of the decipher function's argument

	helperAlias string
	helperBody  string // interior of the object literal, braces trimmed

	nName string
	nBody string
	nSrc  string
}

// Probe names reported inside PATTERN_DRIFT errors.
const (
	probeDecipher      = "decipher"
	probeHelper        = "helper"
	probeNTransform    = "n-transform"
	probeNTransformDef = "n-transform-definition"
	probeSigCalls      = "signature-calls"
	probeNBody         = "n-transform-body"
)

// The obfuscator emits the decipher function either as an assignment or as a
// declaration. Go regexps cannot backreference the parameter name, so each
// candidate is validated structurally after its body is extracted.
var decipherProbes = []*regexp.Regexp{
	regexp.MustCompile(`([a-zA-Z0-9$_]+)\s*=\s*function\(\s*([a-zA-Z0-9$_]+)\s*\)\s*\{`),
	regexp.MustCompile(`function\s+([a-zA-Z0-9$_]+)\s*\(\s*([a-zA-Z0-9$_]+)\s*\)\s*\{`),
	regexp.MustCompile(`([a-zA-Z0-9$_]+)\s*:\s*function\(\s*([a-zA-Z0-9$_]+)\s*\)\s*\{`),
}

// Call sites on the n-transform look like b=XX(b), b=XX[0](b) or appear right
// after a .get("n") guard. Ordered from most to least specific.
var nNameProbes = []*regexp.Regexp{
	regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$_]+)(?:\[(\d+)\])?\(`),
	regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(\s*b\s*=\s*([a-zA-Z0-9$_]+)(?:\[(\d+)\])?\s*\(`),
	regexp.MustCompile(`\bb=([a-zA-Z0-9$_]+)\[(\d+)\]\(b\)`),
}

// parseScript locates the decipher function and its helper object inside one
// player script. The n-transform is located on a best-effort basis; a failed
// probe there is returned inside the result and only becomes fatal when an
// n-token actually needs transforming.
func parseScript(js string) (*scriptFunctions, error) {
	fns := &scriptFunctions{}

	if err := locateDecipher(js, fns); err != nil {
		return nil, err
	}
	if err := locateHelperObject(js, fns); err != nil {
		return nil, err
	}
	return fns, nil
}

// locateDecipher finds a function whose body splits its single string
// argument into characters, calls into a helper object, and joins the result
// back. The first candidate matching that shape wins.
func locateDecipher(js string, fns *scriptFunctions) error {
	for _, re := range decipherProbes {
		for _, idx := range re.FindAllStringSubmatchIndex(js, -1) {
			name := js[idx[2]:idx[3]]
			param := js[idx[4]:idx[5]]

			body, _, err := ExtractBlock(js, idx[1]-1)
			if err != nil {
				return err
			}
			if !isDecipherBody(body, param) {
				continue
			}
			fns.decipherName = name
			fns.decipherBody = body
			fns.param = param
			return nil
		}
	}
	return newPatternDrift(probeDecipher)
}

// isDecipherBody checks the split/transform/join shape.
func isDecipherBody(body, param string) bool {
	if !strings.Contains(body, param+".split(") {
		return false
	}
	if !strings.Contains(body, "return "+param+".join(") {
		return false
	}
	// At least one helper call of the form XX.yy(param or XX["yy"](param.
	callRe := regexp.MustCompile(`[a-zA-Z0-9$_]+(?:\.[a-zA-Z0-9$_]+|\[(?:"[^"]+"|'[^']+')\])\(\s*` + regexp.QuoteMeta(param) + `\s*[,)]`)
	return callRe.MatchString(body)
}

// locateHelperObject extracts the object literal the decipher body calls into.
func locateHelperObject(js string, fns *scriptFunctions) error {
	aliasRe := regexp.MustCompile(`([a-zA-Z0-9$_]+)(?:\.[a-zA-Z0-9$_]+|\[(?:"[^"]+"|'[^']+')\])\(\s*` + regexp.QuoteMeta(fns.param) + `\s*[,)]`)
	m := aliasRe.FindStringSubmatch(fns.decipherBody)
	if m == nil {
		return newPatternDrift(probeHelper)
	}
	alias := m[1]

	defRe := regexp.MustCompile(`(?:^|[\s;,])(?:var\s+|let\s+|const\s+)?` + regexp.QuoteMeta(alias) + `\s*=\s*\{`)
	loc := defRe.FindStringIndex(js)
	if loc == nil {
		return newPatternDrift(probeHelper)
	}
	block, _, err := ExtractBlock(js, loc[1]-1)
	if err != nil {
		return err
	}

	fns.helperAlias = alias
	fns.helperBody = strings.TrimSuffix(strings.TrimPrefix(block, "{"), "}")
	return nil
}

// locateNTransform finds the throttle-token transform. The reference to it is
// an index into a one-element dispatch array in newer player versions, so the
// array literal is resolved when present.
func locateNTransform(js string, fns *scriptFunctions) error {
	var name string
	for _, re := range nNameProbes {
		m := re.FindStringSubmatch(js)
		if m == nil {
			continue
		}
		name = m[1]
		if len(m) > 2 && m[2] != "" {
			idx, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			resolved, ok := resolveDispatchArray(js, name, idx)
			if !ok {
				continue
			}
			name = resolved
		}
		break
	}
	if name == "" {
		return newPatternDrift(probeNTransform)
	}

	defStart, braceHint := findFunctionDefinition(js, name)
	if defStart < 0 {
		return newPatternDrift(probeNTransformDef)
	}
	body, end, err := ExtractBlock(js, braceHint)
	if err != nil {
		return err
	}

	fns.nName = name
	fns.nBody = body
	fns.nSrc = runnableSource(js, defStart, end)
	return nil
}

// resolveDispatchArray resolves NAME[idx] through a var NAME=[a,b,...] literal.
func resolveDispatchArray(js, name string, idx int) (string, bool) {
	re := regexp.MustCompile(`(?:var\s+|let\s+|const\s+)` + regexp.QuoteMeta(name) + `\s*=\s*\[([^\]]*)\]`)
	m := re.FindStringSubmatch(js)
	if m == nil {
		return "", false
	}
	elems := strings.Split(m[1], ",")
	if idx < 0 || idx >= len(elems) {
		return "", false
	}
	return strings.TrimSpace(elems[idx]), true
}

// findFunctionDefinition returns the start offset of the definition of the
// named function and an offset at or before its opening brace.
func findFunctionDefinition(js, name string) (int, int) {
	q := regexp.QuoteMeta(name)
	for _, pat := range []string{
		q + `\s*=\s*function\s*\(`,
		`function\s+` + q + `\s*\(`,
	} {
		if loc := regexp.MustCompile(pat).FindStringIndex(js); loc != nil {
			return loc[0], loc[1]
		}
	}
	return -1, 0
}

// runnableSource returns a statement that defines the located function when
// fed to a JavaScript engine, for the opt-in fallback evaluator.
func runnableSource(js string, defStart, defEnd int) string {
	src := js[defStart:defEnd]
	if strings.HasPrefix(strings.TrimSpace(src), "function") {
		return src
	}
	return "var " + src
}
