package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord   tokenKind = iota // identifier or dotted path
	tokOp                      // operators, including "="
	tokString                  // "…" or '…'
	tokNumber                  // 42 | 3.14
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokSep // ";" or a newline, only significant in scripts
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

// keywordOps maps word operators onto their symbolic forms.
var keywordOps = map[string]string{ //nolint:gochecknoglobals
	"and": "&&",
	"or":  "||",
	"not": "!",
}

func isWordStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '$'
}

func isWordPart(ch rune) bool {
	return isWordStart(ch) || unicode.IsDigit(ch) || ch == '.'
}

func tokenize(src string) ([]token, error) { //nolint:gocognit,cyclop,funlen
	var tokens []token

	runes := []rune(src)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		switch {
		case ch == '\n' || ch == ';':
			tokens = append(tokens, token{tokSep, string(ch), i})
			i++
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case ch == '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
		case ch == ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
		case ch == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case ch == '&' || ch == '|':
			if i+1 >= len(runes) || runes[i+1] != ch {
				return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, ch, i)
			}

			tokens = append(tokens, token{tokOp, string([]rune{ch, ch}), i})
			i += 2
		case strings.ContainsRune("=!<>", ch):
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokOp, string([]rune{ch, '='}), i})
				i += 2
			} else {
				tokens = append(tokens, token{tokOp, string(ch), i})
				i++
			}
		case strings.ContainsRune("+-*/%", ch):
			tokens = append(tokens, token{tokOp, string(ch), i})
			i++
		case ch == '"' || ch == '\'':
			var (
				sb    strings.Builder
				start = i
			)

			i++

			for i < len(runes) && runes[i] != ch {
				if runes[i] == '\\' && i+1 < len(runes) {
					i++

					switch runes[i] {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					default:
						sb.WriteRune(runes[i])
					}
				} else {
					sb.WriteRune(runes[i])
				}

				i++
			}

			if i >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string starting at position %d", ErrSyntax, start)
			}

			tokens = append(tokens, token{tokString, sb.String(), start})
			i++
		case unicode.IsDigit(ch) || (ch == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}

			tokens = append(tokens, token{tokNumber, string(runes[start:i]), start})
		case isWordStart(ch):
			start := i
			for i < len(runes) && isWordPart(runes[i]) {
				i++
			}

			word := string(runes[start:i])
			if op, ok := keywordOps[strings.ToLower(word)]; ok {
				tokens = append(tokens, token{tokOp, op, start})
			} else {
				tokens = append(tokens, token{tokWord, word, start})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, ch, i)
		}
	}

	tokens = append(tokens, token{tokEOF, "", len(runes)})

	return tokens, nil
}
