package tier

import (
	"strings"
)

// Flag names one vetting test that kept a candidate out of Tier 1.
type Flag uint8

// Flags in evaluation order. The order fixes the bit vector layout.
const (
	CenOOT Flag = iota
	CenTIC
	UniqPri
	UniqAlt
	HasSecPri
	HasSecAlt
	OEPri
	OEAlt
	Sweet
	OthTCEMtch
	PDCNoise
	RpBig
	MoDump
	HasSecPriPlanet
	HasSecAltPlanet

	numFlags
)

var flagInfo = [numFlags]struct {
	tag     string
	counted bool
}{
	CenOOT:          {"CenOOT", false},
	CenTIC:          {"CenTIC", false},
	UniqPri:         {"UniqPri", true},
	UniqAlt:         {"UniqAlt", true},
	HasSecPri:       {"HasSecPri", true},
	HasSecAlt:       {"HasSecAlt", true},
	OEPri:           {"OEPri", true},
	OEAlt:           {"OEAlt", true},
	Sweet:           {"Sweet", true},
	OthTCEMtch:      {"OthTCEMtch", true},
	PDCNoise:        {"PDCNoise", true},
	RpBig:           {"RpBig", true},
	MoDump:          {"MoDump", true},
	HasSecPriPlanet: {"HasSecPriPlanet", false},
	HasSecAltPlanet: {"HasSecAltPlanet", false},
}

// String returns the flag's tag.
func (f Flag) String() string {
	if f >= numFlags {
		return "Unknown"
	}
	return flagInfo[f].tag
}

// Counted reports whether the flag adds to the failure count. Uncounted
// flags still disqualify.
func (f Flag) Counted() bool {
	return f < numFlags && flagInfo[f].counted
}

// AllFlags returns every flag in evaluation order.
func AllFlags() []Flag {
	out := make([]Flag, numFlags)
	for i := range out {
		out[i] = Flag(i)
	}
	return out
}

// FlagSet is an ordered set of raised flags.
type FlagSet uint32

// With returns s with f raised.
func (s FlagSet) With(f Flag) FlagSet { return s | 1<<f }

// Without returns s with f cleared.
func (s FlagSet) Without(f Flag) FlagSet { return s &^ (1 << f) }

// Has reports whether f is raised.
func (s FlagSet) Has(f Flag) bool { return s&(1<<f) != 0 }

// Empty reports whether no flag is raised.
func (s FlagSet) Empty() bool { return s == 0 }

// Flags lists the raised flags in evaluation order.
func (s FlagSet) Flags() []Flag {
	var out []Flag
	for f := Flag(0); f < numFlags; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Counted returns the number of raised counted flags.
func (s FlagSet) Counted() int {
	n := 0
	for _, f := range s.Flags() {
		if f.Counted() {
			n++
		}
	}
	return n
}

// Bits renders one '0' or '1' per flag in evaluation order.
func (s FlagSet) Bits() string {
	var b strings.Builder
	b.Grow(int(numFlags))
	for f := Flag(0); f < numFlags; f++ {
		if s.Has(f) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// String renders the raised tags, each followed by an underscore.
func (s FlagSet) String() string {
	var b strings.Builder
	for _, f := range s.Flags() {
		b.WriteString(f.String())
		b.WriteByte('_')
	}
	return b.String()
}

// ParseBits is the inverse of Bits.
func ParseBits(bits string) (FlagSet, bool) {
	if len(bits) != int(numFlags) {
		return 0, false
	}
	var s FlagSet
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '1':
			s = s.With(Flag(i))
		case '0':
		default:
			return 0, false
		}
	}
	return s, true
}
