package xport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/giygas/nhanes-api/nhanes/table"
	"golang.org/x/text/encoding"
)

const (
	namestrLen  = 140
	maxNameLen  = 8
	maxLabelLen = 40
	maxCharLen  = 200
	sasVersion  = "9.4"
	sasOS       = "X64_DSRV"
)

// Encode writes t as a single-member transport file named name. Numeric
// columns are written as 8-byte IBM doubles with missing cells as '.';
// character columns are sized to their longest encoded value.
func Encode(w io.Writer, t *table.Table, name string, enc encoding.Encoding) error {
	if enc == nil {
		enc = DefaultEncoding
	}
	if len(name) == 0 || len(name) > maxNameLen {
		return fmt.Errorf("invalid member name %q: must be 1-%d bytes", name, maxNameLen)
	}
	if t.Cols() > 9999 {
		return fmt.Errorf("too many variables: %d", t.Cols())
	}
	encoder := encoding.ReplaceUnsupported(enc.NewEncoder())

	cols := t.Columns()
	encoded := make([][][]byte, len(cols))
	vars := make([]variable, len(cols))
	pos := 0
	for i, col := range cols {
		if len(col.Name) == 0 || len(col.Name) > maxNameLen {
			return fmt.Errorf("invalid variable name %q: must be 1-%d bytes", col.Name, maxNameLen)
		}
		v := variable{kind: col.Kind, name: col.Name, label: col.Label, pos: pos, length: 8}
		if col.Kind == table.Character {
			values := make([][]byte, t.Rows())
			v.length = 1
			for r := range values {
				b, err := encoder.Bytes([]byte(col.Text(r)))
				if err != nil {
					return fmt.Errorf("failed to encode %s row %d: %w", col.Name, r, err)
				}
				if len(b) > maxCharLen {
					b = b[:maxCharLen]
				}
				values[r] = b
				v.length = max(v.length, len(b))
			}
			encoded[i] = values
		}
		vars[i] = v
		pos += v.length
	}
	rowLen := pos

	bw := bufio.NewWriter(w)
	stamp := []byte(strings.ToUpper(time.Now().Format(timestampLayout)))

	records := [][]byte{
		headerRecord(libraryHeader, "000000000000000000000000000000"),
		record(field("SAS", 8), field("SAS", 8), field("SASLIB", 8), field(sasVersion, 8), field(sasOS, 8), field("", 24), stamp),
		record(stamp),
		headerRecord(memberHeader, "000000000000000001600000000140"),
		headerRecord(descriptorHeader, "000000000000000000000000000000"),
		record(field("SAS", 8), field(name, 8), field("SASDATA", 8), field(sasVersion, 8), field(sasOS, 8), field("", 24), stamp),
		record(stamp, field("", 16), field("", 40), field("", 8)),
		headerRecord(namestrHeader, fmt.Sprintf("000000%04d00000000000000000000", len(cols))),
	}
	for _, rec := range records {
		if _, err := bw.Write(rec); err != nil {
			return err
		}
	}

	namestrs := make([]byte, 0, paddedLen(len(vars)*namestrLen))
	for i, v := range vars {
		label, err := encoder.Bytes([]byte(v.label))
		if err != nil {
			label = nil
		}
		namestrs = append(namestrs, namestr(v, i, label)...)
	}
	if _, err := bw.Write(pad(namestrs)); err != nil {
		return err
	}
	if _, err := bw.Write(headerRecord(obsHeader, "000000000000000000000000000000")); err != nil {
		return err
	}

	row := make([]byte, rowLen)
	written := 0
	for r := range t.Rows() {
		for i, col := range cols {
			v := vars[i]
			cell := row[v.pos : v.pos+v.length]
			if col.Kind == table.Character {
				n := copy(cell, encoded[i][r])
				for j := n; j < len(cell); j++ {
					cell[j] = ' '
				}
				continue
			}
			if col.Missing[r] {
				clear(cell)
				cell[0] = '.'
				continue
			}
			b, err := float64ToIBM(col.Numbers[r])
			if err != nil {
				return fmt.Errorf("%s row %d: %w", col.Name, r, err)
			}
			copy(cell, b[:])
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
		written += rowLen
	}
	if rest := paddedLen(written) - written; rest > 0 {
		if _, err := bw.Write(bytes.Repeat([]byte{' '}, rest)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func namestr(v variable, index int, label []byte) []byte {
	ns := make([]byte, namestrLen)
	ntype := uint16(1)
	if v.kind == table.Character {
		ntype = 2
	}
	binary.BigEndian.PutUint16(ns[0:2], ntype)
	binary.BigEndian.PutUint16(ns[4:6], uint16(v.length))
	binary.BigEndian.PutUint16(ns[6:8], uint16(index+1))
	copy(ns[8:16], field(v.name, 8))
	copy(ns[16:56], field(string(label), maxLabelLen))
	copy(ns[56:64], field("", 8))
	copy(ns[72:80], field("", 8))
	binary.BigEndian.PutUint32(ns[84:88], uint32(v.pos))
	return ns
}

func headerRecord(prefix, digits string) []byte {
	return record([]byte(prefix), []byte(digits), []byte("  "))
}

// record joins parts into one 80-byte card, blank padded.
func record(parts ...[]byte) []byte {
	rec := bytes.Join(parts, nil)
	if len(rec) > recordLen {
		rec = rec[:recordLen]
	}
	return pad(rec)
}

// field left-justifies s in n bytes, truncating or blank padding.
func field(s string, n int) []byte {
	b := bytes.Repeat([]byte{' '}, n)
	copy(b, s)
	return b
}

func pad(b []byte) []byte {
	if rest := paddedLen(len(b)) - len(b); rest > 0 {
		b = append(b, bytes.Repeat([]byte{' '}, rest)...)
	}
	return b
}
