// Package dtmf defines the DTMF key alphabet and a Goertzel based tone classifier.
package dtmf

// Symbol is one DTMF key, or NoTone.
type Symbol byte

// NoTone is the sentinel for "no confident detection". It is not an error.
const NoTone Symbol = 0

// RowFrequencies and ColumnFrequencies are the DTMF tone pairs in Hz.
var (
	RowFrequencies    = [4]float64{697, 770, 852, 941}
	ColumnFrequencies = [4]float64{1209, 1336, 1477, 1633}
)

// keypad is indexed [row][column].
var keypad = [4][4]Symbol{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// Alphabet returns all sixteen keys in keypad order.
func Alphabet() []Symbol {
	out := make([]Symbol, 0, 16)
	for _, row := range keypad {
		out = append(out, row[:]...)
	}
	return out
}

// ParseSymbol accepts a key character. Lower-case a-d are accepted.
func ParseSymbol(c byte) (Symbol, bool) {
	if c >= 'a' && c <= 'd' {
		c -= 'a' - 'A'
	}
	s := Symbol(c)
	return s, s.Valid()
}

// Valid reports whether s is one of the sixteen keys.
func (s Symbol) Valid() bool {
	switch {
	case s >= '0' && s <= '9':
		return true
	case s >= 'A' && s <= 'D':
		return true
	case s == '*' || s == '#':
		return true
	}
	return false
}

// IsDigit reports whether s is a decimal digit key.
func (s Symbol) IsDigit() bool {
	return s >= '0' && s <= '9'
}

// Digit returns the numeric value of a digit key, or -1.
func (s Symbol) Digit() int32 {
	if !s.IsDigit() {
		return -1
	}
	return int32(s - '0')
}

// Frequencies returns the row and column tone of s.
func (s Symbol) Frequencies() (row, col float64, ok bool) {
	for r := range keypad {
		for c := range keypad[r] {
			if keypad[r][c] == s {
				return RowFrequencies[r], ColumnFrequencies[c], true
			}
		}
	}
	return 0, 0, false
}

func (s Symbol) String() string {
	if s == NoTone {
		return "none"
	}
	return string(rune(s))
}
