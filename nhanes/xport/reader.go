// Package xport reads and writes SAS transport (XPORT version 5) files, the
// format NHANES publishes its survey components in.
package xport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/nhanes-api/nhanes/table"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const recordLen = 80

const (
	libraryHeader    = "HEADER RECORD*******LIBRARY HEADER RECORD!!!!!!!"
	memberHeader     = "HEADER RECORD*******MEMBER  HEADER RECORD!!!!!!!"
	descriptorHeader = "HEADER RECORD*******DSCRPTR HEADER RECORD!!!!!!!"
	namestrHeader    = "HEADER RECORD*******NAMESTR HEADER RECORD!!!!!!!"
	obsHeader        = "HEADER RECORD*******OBS     HEADER RECORD!!!!!!!"

	// ddMMMyy:hh:mm:ss, month upper-cased on disk
	timestampLayout = "02Jan06:15:04:05"
)

var (
	ErrNotXport  = errors.New("not a SAS transport file")
	ErrTruncated = errors.New("truncated SAS transport file")
)

// DefaultEncoding is the character set NHANES text fields are written in.
var DefaultEncoding encoding.Encoding = charmap.Windows1252

// Member is one dataset of a transport file along with its descriptor.
type Member struct {
	Name       string
	Label      string
	Type       string
	SASVersion string
	OS         string
	Created    time.Time
	Modified   time.Time
	Table      *table.Table
}

type variable struct {
	kind   table.Kind
	length int
	pos    int
	name   string
	label  string
}

type cursor struct {
	data []byte
	off  int
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.off+n > len(c.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, c.off, len(c.data)-c.off)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) header(prefix string) ([]byte, error) {
	rec, err := c.take(recordLen)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(rec, []byte(prefix)) {
		return nil, fmt.Errorf("%w: expected %q at offset %d", ErrNotXport, strings.TrimRight(prefix, "!"), c.off-recordLen)
	}
	return rec, nil
}

// Read decodes the first member of a transport file read fully from r.
func Read(r io.Reader, enc encoding.Encoding) (*table.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read transport file: %w", err)
	}
	return Decode(data, enc)
}

// Decode parses the first member of an in-memory transport file. Text is
// decoded with enc, or DefaultEncoding when enc is nil.
func Decode(data []byte, enc encoding.Encoding) (*table.Table, error) {
	m, err := DecodeMember(data, enc)
	if err != nil {
		return nil, err
	}
	return m.Table, nil
}

// DecodeMember is Decode keeping the member descriptor.
func DecodeMember(data []byte, enc encoding.Encoding) (*Member, error) {
	if enc == nil {
		enc = DefaultEncoding
	}
	dec := enc.NewDecoder()
	text := func(b []byte) string {
		s, err := dec.Bytes(b)
		if err != nil {
			s = b
		}
		return strings.TrimRight(string(s), " \x00")
	}

	c := &cursor{data: data}

	// library header, real header, modified header
	if _, err := c.header(libraryHeader); err != nil {
		return nil, err
	}
	first, err := c.take(recordLen)
	if err != nil {
		return nil, err
	}
	if _, err := c.take(recordLen); err != nil {
		return nil, err
	}

	rec, err := c.header(memberHeader)
	if err != nil {
		return nil, err
	}
	namestrLen, err := strconv.Atoi(string(rec[74:78]))
	if err != nil || (namestrLen != 140 && namestrLen != 136) {
		return nil, fmt.Errorf("%w: bad namestr length %q", ErrNotXport, rec[74:78])
	}
	if _, err := c.header(descriptorHeader); err != nil {
		return nil, err
	}

	desc1, err := c.take(recordLen)
	if err != nil {
		return nil, err
	}
	desc2, err := c.take(recordLen)
	if err != nil {
		return nil, err
	}
	m := &Member{
		Name:       text(desc1[8:16]),
		SASVersion: text(desc1[24:32]),
		OS:         text(desc1[32:40]),
		Created:    parseTimestamp(desc1[64:80]),
		Modified:   parseTimestamp(desc2[0:16]),
		Label:      text(desc2[32:72]),
		Type:       text(desc2[72:80]),
	}
	if m.Created.IsZero() {
		m.Created = parseTimestamp(first[64:80])
	}

	rec, err = c.header(namestrHeader)
	if err != nil {
		return nil, err
	}
	nvars, err := strconv.Atoi(string(rec[54:58]))
	if err != nil || nvars < 0 {
		return nil, fmt.Errorf("%w: bad variable count %q", ErrNotXport, rec[54:58])
	}
	if nvars > (len(c.data)-c.off)/namestrLen {
		return nil, fmt.Errorf("%w: %d variables declared at offset %d", ErrTruncated, nvars, c.off)
	}

	raw, err := c.take(paddedLen(nvars * namestrLen))
	if err != nil {
		return nil, err
	}
	vars := make([]variable, nvars)
	rowLen := 0
	for i := range vars {
		ns := raw[i*namestrLen : (i+1)*namestrLen]
		v := variable{
			length: int(binary.BigEndian.Uint16(ns[4:6])),
			name:   text(ns[8:16]),
			label:  text(ns[16:56]),
			pos:    int(binary.BigEndian.Uint32(ns[84:88])),
		}
		switch binary.BigEndian.Uint16(ns[0:2]) {
		case 1:
			v.kind = table.Numeric
			if v.length < 2 || v.length > 8 {
				return nil, fmt.Errorf("%w: numeric variable %s has length %d", ErrNotXport, v.name, v.length)
			}
		case 2:
			v.kind = table.Character
		default:
			return nil, fmt.Errorf("%w: variable %s has unknown type %d", ErrNotXport, v.name, binary.BigEndian.Uint16(ns[0:2]))
		}
		vars[i] = v
		rowLen = max(rowLen, v.pos+v.length)
	}

	if _, err := c.header(obsHeader); err != nil {
		return nil, err
	}

	obs := observationArea(c.data[c.off:])
	nobs := recordCount(obs, rowLen)

	cols := make([]*table.Column, nvars)
	for i, v := range vars {
		col := &table.Column{Name: v.name, Label: v.label, Kind: v.kind, Missing: make([]bool, nobs)}
		if v.kind == table.Numeric {
			col.Numbers = make([]float64, nobs)
		} else {
			col.Strings = make([]string, nobs)
		}
		cols[i] = col
	}

	for r := range nobs {
		row := obs[r*rowLen : (r+1)*rowLen]
		for i, v := range vars {
			cell := row[v.pos : v.pos+v.length]
			if v.kind == table.Character {
				cols[i].Strings[r] = text(cell)
				continue
			}
			if isMissing(cell) {
				cols[i].Missing[r] = true
				continue
			}
			var b [8]byte
			copy(b[:], cell)
			cols[i].Numbers[r] = ibmToFloat64(b)
		}
	}

	m.Table = table.New()
	for _, col := range cols {
		if err := m.Table.AddColumn(col); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotXport, err)
		}
	}
	return m, nil
}

// observationArea cuts the observations at the start of a following member.
func observationArea(data []byte) []byte {
	for off := 0; off+recordLen <= len(data); off += recordLen {
		if bytes.HasPrefix(data[off:], []byte(memberHeader)) {
			return data[:off]
		}
	}
	return data
}

// recordCount returns the number of rows in obs, ignoring the blank padding
// that fills the last 80-byte record. For rows of at most 80 bytes, trailing
// blanks of the last record are trimmed byte by byte and the count rounds up,
// so a last row ending in blank character cells is kept. Trimming whole
// 8-byte blank words and rounding down would drop that row.
func recordCount(obs []byte, rowLen int) int {
	if rowLen == 0 {
		return 0
	}
	if rowLen > recordLen {
		return len(obs) / rowLen
	}
	tail := 0
	for i := len(obs) - 1; i >= 0 && tail < recordLen && obs[i] == ' '; i-- {
		tail++
	}
	n := (len(obs) - tail + rowLen - 1) / rowLen
	return min(n, len(obs)/rowLen)
}

// isMissing reports whether a numeric cell holds one of the SAS missing
// values: '.', '_' or 'A'-'Z' followed by zero bytes.
func isMissing(cell []byte) bool {
	first := cell[0]
	if first != '.' && first != '_' && (first < 'A' || first > 'Z') {
		return false
	}
	for _, b := range cell[1:] {
		if b != 0 {
			return false
		}
	}
	return true
}

func parseTimestamp(b []byte) time.Time {
	t, err := time.Parse(timestampLayout, strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}
	}
	return t
}

func paddedLen(n int) int {
	return (n + recordLen - 1) / recordLen * recordLen
}
