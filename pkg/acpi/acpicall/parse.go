package acpicall

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charlie0129/acpibatt/pkg/acpi"
)

// parser reads the result text acpi_call leaves in /proc/acpi/call:
// integers as 0x.., strings quoted, buffers as {0x.., ..} and packages as
// [.., ..].
type parser struct {
	s   string
	pos int
}

// ParseInteger parses an integer result.
func ParseInteger(s string) (uint64, error) {
	p := &parser{s: strings.TrimRight(s, "\x00\n")}
	p.skipSpace()
	v, err := p.integer()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if !p.eof() {
		return 0, p.errorf("trailing data")
	}
	return v, nil
}

// ParsePackage parses a package result.
func ParsePackage(s string) (acpi.Package, error) {
	p := &parser{s: strings.TrimRight(s, "\x00\n")}
	p.skipSpace()
	pkg, err := p.pkg()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("trailing data")
	}
	return pkg, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\n' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", acpi.ErrUnexpectedKind, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) integer() (uint64, error) {
	start := p.pos
	for !p.eof() && isIntChar(p.s[p.pos]) {
		p.pos++
	}
	tok := p.s[start:p.pos]
	if tok == "" {
		return 0, p.errorf("expected integer")
	}
	v, err := strconv.ParseUint(tok, 0, 64)
	if err != nil {
		return 0, p.errorf("bad integer %q", tok)
	}
	return v, nil
}

func isIntChar(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F') || c == 'x' || c == 'X'
}

func (p *parser) text() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	end := strings.IndexByte(p.s[p.pos:], '"')
	if end < 0 {
		return "", p.errorf("unterminated string")
	}
	s := p.s[p.pos : p.pos+end]
	p.pos += end + 1
	return s, nil
}

func (p *parser) buffer() ([]byte, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var b []byte
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return b, nil
		}
		if len(b) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
			p.skipSpace()
			// acpi_call ends a truncated buffer with a dangling comma.
			if p.peek() == '}' {
				p.pos++
				return b, nil
			}
		}
		v, err := p.integer()
		if err != nil {
			return nil, err
		}
		if v > 0xFF {
			return nil, p.errorf("buffer byte %#x out of range", v)
		}
		b = append(b, byte(v))
	}
}

func (p *parser) value() (acpi.Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.text()
		if err != nil {
			return acpi.Value{}, err
		}
		return acpi.Text(s), nil
	case '{':
		b, err := p.buffer()
		if err != nil {
			return acpi.Value{}, err
		}
		return acpi.Bytes(b), nil
	case '[':
		return acpi.Value{}, p.errorf("nested packages are not supported")
	}
	v, err := p.integer()
	if err != nil {
		return acpi.Value{}, err
	}
	return acpi.Integer(v), nil
}

func (p *parser) pkg() (acpi.Package, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	pkg := acpi.Package{}
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return pkg, nil
		}
		if len(pkg) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
			p.skipSpace()
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		pkg = append(pkg, v)
	}
}
