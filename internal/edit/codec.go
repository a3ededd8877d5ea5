package edit

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/shiv248/editserver/internal/ot"
)

// ErrBadEncoding covers every malformed line: bad escape, unknown
// optype, wrong field count, or an unparseable integer field.
var ErrBadEncoding = errors.New("edit: bad encoding")

// ErrBadParent covers a submission whose parent reference is
// malformed: out-of-range server seq, an unrecognized editor, or (when
// the shadow is clean) a parent that isn't the client's last
// submission.
var ErrBadParent = errors.New("edit: bad parent")

var hexDigits = "0123456789abcdef"

func isControlOrBackslash(b byte) bool {
	switch b {
	case 0, 8, 9, 10, 13, 92:
		return true
	}
	return b <= 31 || b == 127
}

// EncodeText escapes every byte of Insert text per the wire table in
// spec §6: \0 \b \t \n \r \\ for the named control bytes, \xNN
// (lowercase hex) for the remaining control bytes and DEL, and all
// other bytes passed through verbatim.
func EncodeText(text []byte) []byte {
	out := make([]byte, 0, len(text))
	for _, b := range text {
		switch b {
		case 0:
			out = append(out, '\\', '0')
		case 8:
			out = append(out, '\\', 'b')
		case 9:
			out = append(out, '\\', 't')
		case 10:
			out = append(out, '\\', 'n')
		case 13:
			out = append(out, '\\', 'r')
		case 92:
			out = append(out, '\\', '\\')
		default:
			if isControlOrBackslash(b) {
				out = append(out, '\\', 'x', hexDigits[b>>4], hexDigits[b&0xf])
			} else {
				out = append(out, b)
			}
		}
	}
	return out
}

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

// DecodeText reverses EncodeText, accepting upper- or lowercase hex
// digits in \xNN escapes. Any other escape sequence is an error.
func DecodeText(wire []byte) ([]byte, error) {
	out := make([]byte, 0, len(wire))
	i := 0
	for i < len(wire) {
		c := wire[i]
		i++
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i >= len(wire) {
			return nil, fmt.Errorf("%w: unterminated escape", ErrBadEncoding)
		}
		esc := wire[i]
		i++
		switch esc {
		case '0':
			out = append(out, 0)
		case 'b':
			out = append(out, 8)
		case 't':
			out = append(out, 9)
		case 'n':
			out = append(out, 10)
		case 'r':
			out = append(out, 13)
		case '\\':
			out = append(out, 92)
		case 'x':
			if i+1 >= len(wire) {
				return nil, fmt.Errorf("%w: incomplete \\x escape", ErrBadEncoding)
			}
			hi, ok1 := hexNibble(wire[i])
			lo, ok2 := hexNibble(wire[i+1])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%w: bad hex in \\x escape", ErrBadEncoding)
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			return nil, fmt.Errorf("%w: unknown escape '\\%c'", ErrBadEncoding, esc)
		}
	}
	return out, nil
}

// EncodeOp serializes an operation's type/idx/arg fields for the wire
// (without the leading "s:" or "x:" envelope).
func EncodeOp(op ot.Op) []byte {
	switch op.Kind {
	case ot.KindInsert:
		return []byte(fmt.Sprintf("i:%d:%s", op.Idx, EncodeText(op.Text)))
	case ot.KindDelete:
		return []byte(fmt.Sprintf("d:%d:%d", op.Idx, op.NChars))
	default:
		panic("edit: unknown operation kind")
	}
}

// DecodeOp deserializes an operation from its type/idx/arg fields.
// Deletes decoded off the wire always carry no recovered text (they
// are never invertible, per spec §3).
func DecodeOp(typ, idxField, argField []byte) (ot.Op, error) {
	idx, err := strconv.Atoi(string(idxField))
	if err != nil || idx < 0 {
		return ot.Op{}, fmt.Errorf("%w: bad index %q", ErrBadEncoding, idxField)
	}
	switch string(typ) {
	case "i":
		text, err := DecodeText(argField)
		if err != nil {
			return ot.Op{}, err
		}
		return ot.Insert(idx, text), nil
	case "d":
		n, err := strconv.Atoi(string(argField))
		if err != nil || n < 0 {
			return ot.Op{}, fmt.Errorf("%w: bad nchars %q", ErrBadEncoding, argField)
		}
		return ot.Delete(idx, n, nil), nil
	default:
		return ot.Op{}, fmt.Errorf("%w: unknown optype %q", ErrBadEncoding, typ)
	}
}

// DecodeSubmission parses a client submission's body (everything after
// the leading "s:"), a colon-separated
// id.seq:parent.seq:parent.editor:optype:idx:arg list, per spec §6.
// The submitter is always the connection's own editor id.
func DecodeSubmission(body []byte, submitter EditorID) (Edit, error) {
	fields := bytes.SplitN(body, []byte(":"), 6)
	if len(fields) != 6 {
		return Edit{}, fmt.Errorf("%w: submission has %d fields, want 6", ErrBadEncoding, len(fields))
	}
	seq, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return Edit{}, fmt.Errorf("%w: bad id.seq %q", ErrBadEncoding, fields[0])
	}
	parentSeq, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return Edit{}, fmt.Errorf("%w: bad parent.seq %q", ErrBadEncoding, fields[1])
	}
	parentEditor, err := strconv.ParseUint(string(fields[2]), 10, 64)
	if err != nil {
		return Edit{}, fmt.Errorf("%w: bad parent.editor %q", ErrBadEncoding, fields[2])
	}
	op, err := DecodeOp(fields[3], fields[4], fields[5])
	if err != nil {
		return Edit{}, err
	}
	return Edit{
		Op:        op,
		ID:        ID{Seq: seq, Editor: submitter},
		Parent:    ID{Seq: parentSeq, Editor: EditorID(parentEditor)},
		Submitter: submitter,
	}, nil
}

// EncodeSubmission renders an Edit as a submission line body (without
// the leading "s:" or trailing "\n").
func EncodeSubmission(e Edit) []byte {
	return []byte(fmt.Sprintf("%d:%d:%d:%s", e.ID.Seq, e.Parent.Seq, e.Parent.Editor, EncodeOp(e.Op)))
}

// EncodeAccept renders the "a:<seq>" accept line body.
func EncodeAccept(seq int) []byte {
	return []byte(strconv.Itoa(seq))
}

// EncodeExternal renders the "x:<seq>:<optype>:<idx>:<arg>" broadcast
// line body for a server-space edit.
func EncodeExternal(seq int, op ot.Op) []byte {
	return []byte(fmt.Sprintf("%d:%s", seq, EncodeOp(op)))
}

// SplitLine separates a complete protocol line (without its trailing
// newline) into its leading type tag and body.
func SplitLine(line []byte) (typ string, body []byte, err error) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return "", nil, fmt.Errorf("%w: line has no type tag: %q", ErrBadEncoding, line)
	}
	return string(line[:i]), line[i+1:], nil
}
