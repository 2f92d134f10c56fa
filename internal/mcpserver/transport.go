package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxFrameSize bounds a single message, in either framing.
const maxFrameSize = 64 << 20

// Framing is the wire format of one message.
type Framing int

const (
	// FramingHeader is a Content-Length header block followed by the body.
	FramingHeader Framing = iota
	// FramingLine is one JSON document terminated by a newline.
	FramingLine
)

// errBadFrame marks a message that cannot be used. It has been consumed
// from the stream and the session continues with the next one.
var errBadFrame = errors.New("bad frame")

type frame struct {
	body    []byte
	framing Framing
	err     error
}

// Handler turns one request body into a response body (nil for none).
type Handler interface {
	Handle(ctx context.Context, msg []byte) []byte
}

// Serve runs the stdio session: it reads framed messages from r, handles
// them one at a time and writes responses to w with the framing of the
// request. It returns nil on EOF and ctx.Err() on cancellation.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	return serve(ctx, r, w, h, maxFrameSize)
}

func serve(ctx context.Context, r io.Reader, w io.Writer, h Handler, limit int) error {
	frames := make(chan frame)
	done := make(chan struct{})
	defer close(done)

	go readFrames(bufio.NewReader(r), limit, frames, done)

	bw := bufio.NewWriter(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.err != nil {
				if !errors.Is(f.err, errBadFrame) {
					return f.err
				}
				log.Warn().Err(f.err).Msg("Skipping unreadable frame")
				if err := writeFrame(bw, parseErrorBody(), f.framing); err != nil {
					return err
				}
				continue
			}

			out := h.Handle(ctx, f.body)
			if out == nil {
				continue
			}
			if err := writeFrame(bw, out, f.framing); err != nil {
				return err
			}
		}
	}
}

// readFrames feeds frames until EOF or a fatal read error. Running it on
// its own goroutine keeps shutdown from waiting on a blocked stdin read.
func readFrames(r *bufio.Reader, limit int, out chan<- frame, done <-chan struct{}) {
	defer close(out)
	for {
		f, err := readFrame(r, limit)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil && !errors.Is(err, errBadFrame) {
			f.err = fmt.Errorf("read frame: %w", err)
		} else {
			f.err = err
		}
		select {
		case out <- f:
		case <-done:
			return
		}
		if f.err != nil && !errors.Is(f.err, errBadFrame) {
			return
		}
	}
}

// readFrame reads the next message, detecting its framing from the first
// non-blank byte: '{' or '[' starts a newline-delimited JSON message,
// anything else a header block. A first line that is not a header is one
// malformed line-framed message. Messages over limit bytes are discarded.
func readFrame(r *bufio.Reader, limit int) (frame, error) {
	if err := skipBlank(r); err != nil {
		return frame{}, err
	}
	b, err := r.Peek(1)
	if err != nil {
		return frame{}, err
	}

	if b[0] == '{' || b[0] == '[' {
		line, err := readLine(r, limit)
		if errors.Is(err, errLineTooLong) {
			return frame{framing: FramingLine}, fmt.Errorf("%w: message exceeds %d bytes", errBadFrame, limit)
		}
		if err != nil {
			return frame{}, err
		}
		return frame{body: trimEOL(line), framing: FramingLine}, nil
	}

	length := int64(-1)
	for first := true; ; first = false {
		raw, err := readLine(r, limit)
		if errors.Is(err, errLineTooLong) {
			if first {
				return frame{framing: FramingLine}, fmt.Errorf("%w: message exceeds %d bytes", errBadFrame, limit)
			}
			return frame{framing: FramingHeader}, fmt.Errorf("%w: header line exceeds %d bytes", errBadFrame, limit)
		}
		if err != nil {
			if !first && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return frame{}, err
		}
		line := string(trimEOL(raw))
		name, value, isHeader := strings.Cut(line, ":")
		if first && !(isHeader && isToken(name)) {
			return frame{framing: FramingLine}, fmt.Errorf("%w: neither JSON nor a header block", errBadFrame)
		}
		if raw[len(raw)-1] != '\n' {
			return frame{}, io.ErrUnexpectedEOF
		}
		if line == "" {
			break
		}
		if isHeader && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			length = parseContentLength(strings.TrimSpace(value))
		}
	}

	if length < 0 {
		return frame{framing: FramingHeader}, fmt.Errorf("%w: missing or invalid Content-Length", errBadFrame)
	}
	if length > int64(limit) {
		if _, err := io.CopyN(io.Discard, r, length); err != nil && !errors.Is(err, io.EOF) {
			return frame{}, err
		}
		return frame{framing: FramingHeader}, fmt.Errorf("%w: Content-Length %d exceeds %d", errBadFrame, length, limit)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return frame{}, err
	}
	return frame{body: body, framing: FramingHeader}, nil
}

// parseContentLength returns -1 for unusable values. Lengths too large for
// int64 saturate so the body is still skipped.
func parseContentLength(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	switch {
	case err == nil && n >= 0:
		return n
	case errors.Is(err, strconv.ErrRange) && n > 0:
		return math.MaxInt64
	default:
		return -1
	}
}

var errLineTooLong = errors.New("line too long")

// readLine reads through the next newline. A final line without one is
// returned at EOF. Lines longer than limit are consumed and reported as
// errLineTooLong.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && (len(line) > 0 || tooLong)) {
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		return line, nil
	}
}

// isToken reports whether s is an RFC 7230 header field name.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func skipBlank(r *bufio.Reader) error {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return err
		}
		switch b[0] {
		case '\r', '\n', ' ', '\t':
			if _, err := r.ReadByte(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func trimEOL(b []byte) []byte {
	return []byte(strings.TrimRight(string(b), "\r\n"))
}

func writeFrame(w *bufio.Writer, payload []byte, framing Framing) error {
	if framing == FramingLine {
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		return w.Flush()
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

func parseErrorBody() []byte {
	b, _ := json.Marshal(parseError())
	return b
}

// ServeStdio runs the dispatcher over r and w and closes the session when
// the loop ends.
func (d *Dispatcher) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	defer d.Close()
	log.Info().Str("server", d.info.Name).Msg("MCP server listening on stdio")
	err := Serve(ctx, r, w, d)
	log.Info().Err(err).Msg("MCP session ended")
	return err
}
