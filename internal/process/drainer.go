package process

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// lineMsg is what a stream reader hands to the drain side.
type lineMsg struct {
	stream Stream
	text   string
	eof    bool
	err    error
}

// streamReader performs blocking reads on one pipe and queues decoded lines.
// It is the only reader of its pipe.
type streamReader struct {
	stream  Stream
	r       io.Reader
	maxLine int
	out     chan<- lineMsg
	wake    chan<- struct{}
	quit    <-chan struct{}
}

// readBufferSize is the largest read buffer a stream reader uses.
const readBufferSize = 4096

// run reads until end of stream, a read error, or quit. Exactly one terminal
// message (eof or err) is queued unless quit fires first.
//
// Lines longer than maxLine are forwarded in maxLine pieces. A piece is only
// sent once more content follows it, so a line of exactly maxLine bytes (or a
// multiple) never yields a trailing empty line.
func (sr *streamReader) run() {
	maxLine := sr.maxLine
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	br := bufio.NewReaderSize(sr.r, min(maxLine, readBufferSize))
	var partial []byte

	for {
		chunk, err := br.ReadSlice('\n')
		partial = append(partial, chunk...)

		switch {
		case err == nil:
			if !sr.sendPieces([]byte(trimEOL(partial)), maxLine) {
				return
			}
			partial = partial[:0]

		case errors.Is(err, bufio.ErrBufferFull):
			// Hold back up to maxLine bytes, plus a '\r' that may start "\r\n".
			for pendingLen(partial) > maxLine {
				if !sr.send(lineMsg{stream: sr.stream, text: string(partial[:maxLine])}) {
					return
				}
				partial = append(partial[:0], partial[maxLine:]...)
			}

		case errors.Is(err, io.EOF):
			if len(partial) > 0 {
				if !sr.sendPieces([]byte(trimEOL(partial)), maxLine) {
					return
				}
			}
			sr.send(lineMsg{stream: sr.stream, eof: true})
			return

		case isClosedErr(err):
			sr.send(lineMsg{stream: sr.stream, err: ErrStreamClosed})
			return

		default:
			sr.send(lineMsg{stream: sr.stream, err: err})
			return
		}
	}
}

// sendPieces queues one complete line, split into maxLine pieces when longer.
func (sr *streamReader) sendPieces(line []byte, maxLine int) bool {
	for len(line) > maxLine {
		if !sr.send(lineMsg{stream: sr.stream, text: string(line[:maxLine])}) {
			return false
		}
		line = line[maxLine:]
	}
	return sr.send(lineMsg{stream: sr.stream, text: string(line)})
}

// pendingLen is the length of an unterminated line not counting a trailing '\r'.
func pendingLen(b []byte) int {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return n - 1
	}
	return len(b)
}

// send queues msg, returning false if the handle released its streams meanwhile.
// A backlog of half the queue wakes the poll loop early so the child is not
// held up by a full queue until the next tick.
func (sr *streamReader) send(msg lineMsg) bool {
	select {
	case sr.out <- msg:
	case <-sr.quit:
		return false
	}
	if len(sr.out) >= cap(sr.out)/2 {
		select {
		case sr.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// isClosedErr reports the read failures caused by Stop closing the pipe.
func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func trimEOL(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return string(b[:n])
}
