package frame

import (
	"io"
	"strconv"
)

// Encode writes f to w in wire format. Writes are unbuffered from Encode's
// point of view; callers that want batched syscalls should wrap w in a
// bufio.Writer and flush once after one or more Encode calls.
func Encode(w io.Writer, f Frame) error {
	switch f.Kind {
	case KindArray:
		if err := writeByte(w, '*'); err != nil {
			return err
		}
		if err := writeDecimal(w, uint64(len(f.Array))); err != nil {
			return err
		}
		for _, item := range f.Array {
			if err := writeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeValue(w, f)
	}
}

// writeValue writes a single literal frame (never an Array header; nested
// arrays are written by recursing through Encode's Array branch, which calls
// writeValue for each element in turn).
func writeValue(w io.Writer, f Frame) error {
	switch f.Kind {
	case KindSimple:
		if err := writeByte(w, '+'); err != nil {
			return err
		}
		if _, err := io.WriteString(w, f.Str); err != nil {
			return err
		}
		return writeCRLF(w)
	case KindError:
		if err := writeByte(w, '-'); err != nil {
			return err
		}
		if _, err := io.WriteString(w, f.Str); err != nil {
			return err
		}
		return writeCRLF(w)
	case KindInteger:
		if err := writeByte(w, ':'); err != nil {
			return err
		}
		return writeDecimal(w, f.Int)
	case KindNull:
		_, err := io.WriteString(w, "$-1\r\n")
		return err
	case KindBulk:
		if err := writeByte(w, '$'); err != nil {
			return err
		}
		if err := writeDecimal(w, uint64(len(f.Bulk))); err != nil {
			return err
		}
		if _, err := w.Write(f.Bulk); err != nil {
			return err
		}
		return writeCRLF(w)
	case KindArray:
		// A nested array inside a literal position: recurse through Encode
		// so it gets its own header, then each of its elements is written
		// as a literal in turn.
		return Encode(w, f)
	default:
		panic("frame: unknown kind in Encode")
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeCRLF(w io.Writer) error {
	_, err := io.WriteString(w, "\r\n")
	return err
}

func writeDecimal(w io.Writer, n uint64) error {
	var buf [20]byte
	s := strconv.AppendUint(buf[:0], n, 10)
	if _, err := w.Write(s); err != nil {
		return err
	}
	return writeCRLF(w)
}
