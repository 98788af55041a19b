package metrics

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// FastEngine parses counter text with a byte scanner that never allocates for
// CPU, memory and temperature input, converting eight digits per word load.
// Input containing non-ASCII bytes is handed to StandardEngine so that both
// engines agree on Unicode whitespace.
type FastEngine struct{}

func (FastEngine) Name() string { return "fast" }

func (FastEngine) ParseCPU(line string) CpuCounters {
	if !isASCII(line) {
		return StandardEngine{}.ParseCPU(line)
	}
	sc := scanner{s: line}
	label, ok := sc.next()
	if !ok || !strings.HasPrefix(label, "cpu") {
		return CpuCounters{}
	}
	var v [7]uint64
	for i := range v {
		tok, ok := sc.next()
		if !ok {
			return CpuCounters{}
		}
		n, ok := parseDigits(tok)
		if !ok {
			return CpuCounters{}
		}
		v[i] = n
	}
	return cpuFromFields(v)
}

func (FastEngine) ParseMemory(block string) MemoryCounters {
	if !isASCII(block) {
		return StandardEngine{}.ParseMemory(block)
	}
	var m MemoryCounters
	for rest := block; rest != ""; {
		var line string
		line, rest = cutLine(rest)
		sc := scanner{s: line}
		key, ok := sc.next()
		if !ok {
			continue
		}
		tok, ok := sc.next()
		if !ok {
			continue
		}
		v, ok := parseDigits(tok)
		if !ok {
			continue
		}
		m.set(strings.TrimSuffix(key, ":"), v)
	}
	return m
}

func (FastEngine) ParseTemperature(s string) float64 {
	if !isASCII(s) {
		return StandardEngine{}.ParseTemperature(s)
	}
	s = trimASCIISpace(s)
	if s == "" {
		return 0
	}
	neg := false
	digits := s
	switch s[0] {
	case '-':
		neg = true
		digits = s[1:]
	case '+':
		digits = s[1:]
	}
	if len(digits) > 18 {
		return StandardEngine{}.ParseTemperature(s)
	}
	n, ok := parseDigits(digits)
	if !ok {
		return 0
	}
	milli := int64(n)
	if neg {
		milli = -milli
	}
	return float64(milli) / 1000
}

func (FastEngine) ParseInterfaces(text string, ts int64) []InterfaceCounters {
	if !isASCII(text) {
		return StandardEngine{}.ParseInterfaces(text, ts)
	}
	var out []InterfaceCounters
	for rest := text; rest != ""; {
		var line string
		line, rest = cutLine(rest)
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		var cols [netDevColumns]uint64
		sc := scanner{s: line[colon+1:]}
		count := 0
		ok := true
		for {
			tok, more := sc.next()
			if !more {
				break
			}
			if count < netDevColumns && isUsedNetDevColumn(count) {
				n, valid := parseDigits(tok)
				if !valid {
					ok = false
					break
				}
				cols[count] = n
			}
			count++
		}
		if !ok || count < netDevColumns {
			continue
		}
		out = append(out, interfaceFromColumns(trimASCIISpace(line[:colon]), cols, ts))
	}
	return out
}

func (FastEngine) CPUUsagePercent(previous, current CpuCounters) float64 {
	return CPUUsagePercent(previous, current)
}

func (FastEngine) FormatCPU(pct float64) string {
	var buf [32]byte
	b := append(buf[:0], "CPU: "...)
	b = strconv.AppendFloat(b, pct, 'f', 1, 64)
	b = append(b, '%')
	return string(b)
}

func (FastEngine) FormatRAM(usedMb, totalMb int64) string {
	var buf [64]byte
	b := append(buf[:0], "RAM: "...)
	b = strconv.AppendInt(b, usedMb, 10)
	b = append(b, '/')
	b = strconv.AppendInt(b, totalMb, 10)
	b = append(b, " MB"...)
	return string(b)
}

func (FastEngine) FormatSpeed(bytesPerSec int64) string {
	var buf [48]byte
	var b []byte
	switch {
	case bytesPerSec < kib:
		b = strconv.AppendInt(buf[:0], bytesPerSec, 10)
		b = append(b, " B/s"...)
	case bytesPerSec < mib:
		b = strconv.AppendFloat(buf[:0], float64(bytesPerSec)/kib, 'f', 1, 64)
		b = append(b, " KB/s"...)
	case bytesPerSec < gib:
		b = strconv.AppendFloat(buf[:0], float64(bytesPerSec)/mib, 'f', 2, 64)
		b = append(b, " MB/s"...)
	default:
		b = strconv.AppendFloat(buf[:0], float64(bytesPerSec)/gib, 'f', 2, 64)
		b = append(b, " GB/s"...)
	}
	return string(b)
}

func (FastEngine) FormatMbps(mbps float64) string {
	mbps = SanitizeValue(mbps)
	var buf [48]byte
	var b []byte
	switch {
	case mbps < 0.01:
		return "0 Mbps"
	case mbps < 1:
		b = strconv.AppendFloat(buf[:0], mbps, 'f', 2, 64)
	case mbps < 100:
		b = strconv.AppendFloat(buf[:0], mbps, 'f', 1, 64)
	case mbps < 1000:
		b = strconv.AppendFloat(buf[:0], mbps, 'f', 0, 64)
	default:
		b = strconv.AppendFloat(buf[:0], mbps/1000, 'f', 2, 64)
		return string(append(b, " Gbps"...))
	}
	return string(append(b, " Mbps"...))
}

// scanner yields ASCII-whitespace separated tokens without copying.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) next() (string, bool) {
	for sc.pos < len(sc.s) && isASCIISpace(sc.s[sc.pos]) {
		sc.pos++
	}
	if sc.pos >= len(sc.s) {
		return "", false
	}
	start := sc.pos
	for sc.pos < len(sc.s) && !isASCIISpace(sc.s[sc.pos]) {
		sc.pos++
	}
	return sc.s[start:sc.pos], true
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func trimASCIISpace(s string) string {
	for len(s) > 0 && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func cutLine(s string) (line, rest string) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func isUsedNetDevColumn(i int) bool {
	return i <= 3 || (i >= 8 && i <= 11)
}

const (
	asciiHighBits = 0x8080808080808080
	nibbleHigh    = 0xF0F0F0F0F0F0F0F0
	digitAdd      = 0x0606060606060606
	digitPattern  = 0x3333333333333333
	zeroLanes     = 0x3030303030303030
)

func isASCII(s string) bool {
	i := 0
	for ; len(s)-i >= 8; i += 8 {
		if load8(s[i:i+8])&asciiHighBits != 0 {
			return false
		}
	}
	for ; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// parseDigits converts an unsigned decimal token. Tokens longer than 19 digits
// may overflow and are left to strconv.
func parseDigits(tok string) (uint64, bool) {
	if tok == "" {
		return 0, false
	}
	if len(tok) > 19 {
		n, err := strconv.ParseUint(tok, 10, 64)
		return n, err == nil
	}
	var v uint64
	i := 0
	for ; len(tok)-i >= 8; i += 8 {
		w := load8(tok[i : i+8])
		if !isEightDigits(w) {
			return 0, false
		}
		v = v*100000000 + eightDigits(w)
	}
	for ; i < len(tok); i++ {
		d := tok[i] - '0'
		if d > 9 {
			return 0, false
		}
		v = v*10 + uint64(d)
	}
	return v, true
}

func load8(s string) uint64 {
	return binary.NativeEndian.Uint64([]byte(s))
}

// isEightDigits expects the word's bytes to be ASCII.
func isEightDigits(w uint64) bool {
	return (w&nibbleHigh)|(((w+digitAdd)&nibbleHigh)>>4) == digitPattern
}

// eightDigits folds eight ASCII digits, first digit in the low byte, into
// their decimal value: pairs, then quads, then the full octet.
func eightDigits(w uint64) uint64 {
	const (
		mask = 0x000000FF000000FF
		mul1 = 100 + (1000000 << 32)
		mul2 = 1 + (10000 << 32)
	)
	w -= zeroLanes
	w = w*10 + (w >> 8)
	return ((w&mask)*mul1 + ((w>>16)&mask)*mul2) >> 32
}
