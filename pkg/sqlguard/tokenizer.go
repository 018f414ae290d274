package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTokenize is returned when statement text cannot be tokenized
var ErrTokenize = errors.New("cannot tokenize statement")

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenString
	tokenNumber
	tokenOpenParen
	tokenCloseParen
	tokenSemicolon
	tokenPunct
)

type token struct {
	kind tokenKind
	// text is upper-cased for words so keyword comparisons are direct
	text string
}

func (t token) isWord(words ...string) bool {
	if t.kind != tokenWord {
		return false
	}
	for _, w := range words {
		if t.text == w {
			return true
		}
	}
	return false
}

// tokenize splits query into tokens, dropping whitespace and comments.
// It does not build a syntax tree; it only knows enough lexical rules to stop
// comments, literals and quoted identifiers from hiding keywords.
func tokenize(query string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(query)

	for i < n {
		c := query[i]

		switch {
		case isSpace(c):
			i++

		case c == '-' && i+1 < n && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = n
			} else {
				i += end + 1
			}

		case c == '/' && i+1 < n && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated block comment at offset %d", ErrTokenize, i)
			}
			i += 2 + end + 2

		case c == '\'':
			end, err := scanQuoted(query, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: query[i:end]})
			i = end

		case c == '"' || c == '`':
			end, err := scanQuoted(query, i, c)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: query[i:end]})
			i = end

		case c == '[':
			end := strings.IndexByte(query[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket identifier at offset %d", ErrTokenize, i)
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: query[i : i+end+1]})
			i += end + 1

		case c == '(':
			tokens = append(tokens, token{kind: tokenOpenParen, text: "("})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokenCloseParen, text: ")"})
			i++

		case c == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";"})
			i++

		case isWordStart(c):
			start := i
			for i < n && isWordPart(query[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenWord, text: strings.ToUpper(query[start:i])})

		case isDigit(c):
			start := i
			for i < n && (isWordPart(query[i]) || query[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: query[start:i]})

		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(c)})
			i++
		}
	}

	return tokens, nil
}

// scanQuoted returns the offset just past the closing quote. A doubled quote
// character inside the literal is an escaped quote.
func scanQuoted(query string, start int, quote byte) (int, error) {
	i := start + 1
	for i < len(query) {
		if query[i] == quote {
			if i+1 < len(query) && query[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("%w: unterminated quoted text at offset %d", ErrTokenize, start)
}

// splitStatements groups tokens into statements separated by top-level
// semicolons. Empty statements are dropped. Semicolons inside a
// CREATE [TEMP] TRIGGER ... BEGIN ... END body belong to the trigger. A body
// left open at the end of the text is an error.
func splitStatements(tokens []token) ([][]token, error) {
	var statements [][]token
	var current []token
	depth := 0
	inTrigger := false
	blockDepth := 0

	for _, t := range tokens {
		switch t.kind {
		case tokenOpenParen:
			depth++
		case tokenCloseParen:
			if depth > 0 {
				depth--
			}
		case tokenWord:
			if !inTrigger && t.text == "TRIGGER" && opensTrigger(current) {
				inTrigger = true
				break
			}
			if inTrigger && depth == 0 {
				switch t.text {
				case "BEGIN", "CASE":
					if t.text == "BEGIN" || blockDepth > 0 {
						blockDepth++
					}
				case "END":
					if blockDepth > 0 {
						blockDepth--
					}
				}
			}
		case tokenSemicolon:
			if depth == 0 && blockDepth == 0 {
				if len(current) > 0 {
					statements = append(statements, current)
				}
				current = nil
				inTrigger = false
				continue
			}
		}
		current = append(current, t)
	}
	if blockDepth > 0 {
		return nil, fmt.Errorf("%w: unterminated trigger body", ErrTokenize)
	}
	if len(current) > 0 {
		statements = append(statements, current)
	}

	return statements, nil
}

// opensTrigger reports whether prefix is CREATE or CREATE TEMP, the only
// positions where TRIGGER names the statement kind
func opensTrigger(prefix []token) bool {
	switch len(prefix) {
	case 1:
		return prefix[0].isWord("CREATE")
	case 2:
		return prefix[0].isWord("CREATE") && prefix[1].isWord("TEMP", "TEMPORARY")
	}
	return false
}
