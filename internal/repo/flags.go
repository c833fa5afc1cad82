package repo

import "strings"

// Flags classifies a patch advertised by a repository.
type Flags uint32

const (
	FlagCore Flags = 1 << iota
	FlagLanguage
	FlagHidden
	FlagGameplay
	FlagGraphics
	FlagFanfiction
	FlagBGM
)

var flagNames = []struct {
	name string
	flag Flags
}{
	{"core", FlagCore},
	{"language", FlagLanguage},
	{"hidden", FlagHidden},
	{"gameplay", FlagGameplay},
	{"graphics", FlagGraphics},
	{"fanfiction", FlagFanfiction},
	{"bgm", FlagBGM},
}

// ParseFlags maps flag names to a bitset. Unknown names are ignored so newer
// repositories keep loading.
func ParseFlags(names []string) Flags {
	var f Flags
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, fn := range flagNames {
			if fn.name == n {
				f |= fn.flag
				break
			}
		}
	}
	return f
}

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Strings returns the set flag names in table order.
func (f Flags) Strings() []string {
	var out []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f Flags) String() string { return strings.Join(f.Strings(), ",") }
