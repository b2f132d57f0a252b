package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 1024 * 1024
)

// Reader reads an SSE byte stream one raw line at a time.
//
// Unlike a full SSE event parser, Reader does not group lines into events:
// each upstream data line of a chat completion stream carries one complete
// JSON chunk, and classifying line by line keeps a malformed line from
// poisoning its neighbours.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, scannerInitialBuffer), scannerMaxBuffer)

	return &Reader{scanner: scanner}
}

// Next blocks until the next line is available and returns it without its
// line terminator. Next returns io.EOF once the source is exhausted.
func (r *Reader) Next() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}

	if err := r.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

// ParseLine splits a single SSE line into its field name and value.
//
// Per the SSE spec, a line has the form "field:value" where the first space
// after the colon is optional and stripped if present. A line with no colon
// is a field name with an empty value. Blank lines and comment lines (leading
// ':') carry no field and report ok == false.
func ParseLine(line string) (field, value string, ok bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", "", false
	}

	before, after, found := strings.Cut(line, ":")
	if !found {
		return line, "", true
	}

	return before, strings.TrimPrefix(after, " "), true
}
