package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const soh = 0x01

var (
	ErrGarbled       = errors.New("frame: garbled message prefix")
	ErrBodyTooLarge  = errors.New("frame: body too large")
	ErrShortTrailer  = errors.New("frame: short checksum trailer")
	ErrFieldTooLarge = errors.New("frame: prefix field too large")
)

// Limits constrains frame decode memory use.
type Limits struct {
	MaxBodyBytes   int
	MaxPrefixBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes:   1024 * 1024,
		MaxPrefixBytes: 32,
	}
}

// ReadMessage reads one complete message: "8=..", "9=N", N body bytes, then
// "10=nnn". io.EOF is returned only when the stream ends on a message boundary.
func ReadMessage(r *bufio.Reader, limits Limits) ([]byte, error) {
	if limits.MaxBodyBytes <= 0 {
		limits = DefaultLimits()
	}
	begin, err := readPrefixField(r, "8=", limits.MaxPrefixBytes)
	if err != nil {
		if errors.Is(err, io.EOF) && len(begin) == 0 {
			return nil, io.EOF
		}
		return nil, unexpected(err)
	}
	length, err := readPrefixField(r, "9=", limits.MaxPrefixBytes)
	if err != nil {
		return nil, unexpected(err)
	}
	n, err := strconv.Atoi(string(length[2 : len(length)-1]))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: body length %q", ErrGarbled, length)
	}
	if n > limits.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, limits.MaxBodyBytes)
	}

	out := make([]byte, 0, len(begin)+len(length)+n+7)
	out = append(out, begin...)
	out = append(out, length...)
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, unexpected(err)
	}
	out = append(out, body...)

	var trailer [7]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortTrailer
		}
		return nil, err
	}
	if !bytes.HasPrefix(trailer[:], []byte("10=")) || trailer[6] != soh {
		return nil, fmt.Errorf("%w: trailer %q", ErrGarbled, trailer[:])
	}
	return append(out, trailer[:]...), nil
}

// readPrefixField reads "<prefix>value<SOH>" and returns it including SOH.
func readPrefixField(r *bufio.Reader, prefix string, max int) ([]byte, error) {
	field := make([]byte, 0, 16)
	for {
		c, err := r.ReadByte()
		if err != nil {
			return field, err
		}
		field = append(field, c)
		if len(field) <= len(prefix) && c != prefix[len(field)-1] {
			return nil, fmt.Errorf("%w: expected %q got %q", ErrGarbled, prefix, field)
		}
		if c == soh {
			if len(field) == len(prefix)+1 {
				return nil, fmt.Errorf("%w: empty %q field", ErrGarbled, prefix)
			}
			return field, nil
		}
		if len(field) > max {
			return nil, fmt.Errorf("%w: %q", ErrFieldTooLarge, field)
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// WriteMessage writes raw in full.
func WriteMessage(w io.Writer, raw []byte) error {
	for len(raw) > 0 {
		n, err := w.Write(raw)
		if err != nil {
			return err
		}
		raw = raw[n:]
	}
	return nil
}
