package cipher

// ExtractBlock scans forward from the first '{' at or after start and returns
// the balanced {...} block including the outer braces, together with the
// offset just past the closing brace.
//
// Braces inside string literals, template literals, regex literals and
// comments do not count toward nesting. Regular expressions cannot match
// nested braces of arbitrary depth, hence this scanner.
func ExtractBlock(src string, start int) (string, int, error) {
	open := -1
	for i := start; i < len(src); i++ {
		if src[i] == '{' {
			open = i
			break
		}
	}
	if open < 0 {
		return "", 0, newUnbalancedBlock(start)
	}

	depth := 0
	i := open
	for i < len(src) {
		c := src[i]
		switch c {
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
			if depth == 0 {
				return src[open:i], i, nil
			}
		case '"', '\'', '`':
			next, ok := skipString(src, i)
			if !ok {
				return "", 0, newUnbalancedBlock(i)
			}
			i = next
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				i = skipLineComment(src, i)
			} else if i+1 < len(src) && src[i+1] == '*' {
				next, ok := skipBlockComment(src, i)
				if !ok {
					return "", 0, newUnbalancedBlock(i)
				}
				i = next
			} else if regexCanFollow(src, open, i) {
				next, ok := skipRegex(src, i)
				if !ok {
					return "", 0, newUnbalancedBlock(i)
				}
				i = next
			} else {
				i++
			}
		default:
			i++
		}
	}
	return "", 0, newUnbalancedBlock(open)
}

// skipString consumes a quoted literal starting at i and returns the offset
// past the closing quote.
func skipString(src string, i int) (int, bool) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, true
		}
	}
	return 0, false
}

func skipLineComment(src string, i int) int {
	for j := i + 2; j < len(src); j++ {
		if src[j] == '\n' {
			return j
		}
	}
	return len(src)
}

func skipBlockComment(src string, i int) (int, bool) {
	for j := i + 2; j+1 < len(src); j++ {
		if src[j] == '*' && src[j+1] == '/' {
			return j + 2, true
		}
	}
	return 0, false
}

// regexCanFollow decides whether a '/' at pos starts a regex literal rather
// than a division. A regex can only follow an operator, a separator or an
// opening bracket; division follows a value.
func regexCanFollow(src string, from, pos int) bool {
	for j := pos - 1; j >= from; j-- {
		c := src[j]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		switch c {
		case '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
			return true
		}
		return false
	}
	return true
}

// skipRegex consumes a /.../flags literal starting at i.
func skipRegex(src string, i int) (int, bool) {
	inClass := false
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '\n':
			return 0, false
		case '/':
			if !inClass {
				return j + 1, true
			}
		}
	}
	return 0, false
}
