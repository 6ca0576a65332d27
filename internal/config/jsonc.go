package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type lexState int

const (
	lexCode lexState = iota
	lexString
	lexStringEscape
	lexLineComment
	lexBlockComment
)

// normalizeJSONC blanks comments and trailing commas with spaces so decoder offsets still map to
// the original file.
func normalizeJSONC(content string) (string, error) {
	buf := []byte(content)

	state := lexCode
	for i := 0; i < len(buf); i++ {
		ch := buf[i]
		switch state {
		case lexString, lexStringEscape:
			state = advanceString(state, ch)
		case lexLineComment:
			if ch == '\n' || ch == '\r' {
				state = lexCode
				continue
			}
			buf[i] = ' '
		case lexBlockComment:
			if ch == '*' && i+1 < len(buf) && buf[i+1] == '/' {
				buf[i], buf[i+1] = ' ', ' '
				i++
				state = lexCode
				continue
			}
			if !isJSONWhitespace(ch) {
				buf[i] = ' '
			}
		case lexCode:
			if ch == '"' {
				state = lexString
				continue
			}
			if ch != '/' || i+1 >= len(buf) {
				continue
			}
			switch buf[i+1] {
			case '/':
				state = lexLineComment
			case '*':
				state = lexBlockComment
			default:
				continue
			}
			buf[i], buf[i+1] = ' ', ' '
			i++
		}
	}
	if state == lexBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}

	state = lexCode
	for i, ch := range buf {
		if state != lexCode {
			state = advanceString(state, ch)
			continue
		}
		switch {
		case ch == '"':
			state = lexString
		case ch == ',' && closesNext(buf[i+1:]):
			buf[i] = ' '
		}
	}

	return string(buf), nil
}

func advanceString(state lexState, ch byte) lexState {
	switch {
	case state == lexStringEscape:
		return lexString
	case ch == '\\':
		return lexStringEscape
	case ch == '"':
		return lexCode
	default:
		return lexString
	}
}

// closesNext reports whether the next non-whitespace byte ends an object or array.
func closesNext(rest []byte) bool {
	for _, ch := range rest {
		if isJSONWhitespace(ch) {
			continue
		}
		return ch == '}' || ch == ']'
	}
	return false
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("multiple JSON values are not allowed")
	default:
		return err
	}
}

// wrapJSONDecodeError prefixes syntax and type errors with a 1-based line and column.
func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))

	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
