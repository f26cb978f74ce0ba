package text

import (
	"github.com/blevesearch/segment"
)

// Token is a whitespace-delimited word with its byte offsets in the source
// string. Enclosing punctuation is trimmed so that "Smith," compares as
// "Smith" while End still points into the original text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into word tokens, preserving byte offsets. Adjacent
// non-whitespace segments are merged into a single token, so "john.smith"
// stays one token rather than three.
func Tokenize(text string) []Token {
	var tokens []Token

	segmenter := segment.NewWordSegmenterDirect([]byte(text))

	var (
		buf      []byte
		bufStart int
		offset   int
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		tok := trimDelimiters(Token{Text: string(buf), Start: bufStart, End: bufStart + len(buf)})
		if tok.Text != "" {
			tokens = append(tokens, tok)
		}
		buf = buf[:0]
	}

	for segmenter.Segment() {
		segmentBytes := segmenter.Bytes()
		if segmenter.Type() == segment.None && isWhitespace(segmentBytes[0]) {
			flush()
		} else {
			if len(buf) == 0 {
				bufStart = offset
			}
			buf = append(buf, segmentBytes...)
		}
		offset += len(segmentBytes)
	}
	flush()

	return tokens
}

func isWhitespace(b byte) bool {
	return b <= 32
}

var tokenDelimiters = map[byte]struct{}{
	'(': {}, ')': {}, '{': {}, '}': {}, '[': {}, ']': {},
	'"': {}, '\'': {}, ':': {}, ';': {}, ',': {}, '.': {},
	'?': {}, '!': {},
}

func isTokenDelimiter(b byte) bool {
	_, ok := tokenDelimiters[b]
	return ok
}

func trimDelimiters(tok Token) Token {
	for len(tok.Text) > 0 && isTokenDelimiter(tok.Text[0]) {
		tok.Text = tok.Text[1:]
		tok.Start++
	}
	for len(tok.Text) > 0 && isTokenDelimiter(tok.Text[len(tok.Text)-1]) {
		tok.Text = tok.Text[:len(tok.Text)-1]
		tok.End--
	}
	return tok
}
