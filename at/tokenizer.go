package at

import (
	"bufio"
	"bytes"
)

// ScanLines is used for tokenizing textual replies of the router CLI. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Replies come back over SSH from different router firmwares, so unlike a raw
// serial line they may be terminated by CRLF, a bare LF or a bare CR. All three
// are accepted and stripped from the token.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, CRLF); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[0:i], nil
		}
		// CR: swallow a following LF, but only once we know what follows.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[0:i], nil
			}
			return i + 1, data[0:i], nil
		}
		if atEOF {
			return i + 1, data[0:i], nil
		}
		return 0, nil, nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = ScanLines
