package output

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	KnownSuffix   = "_known"
	UnknownSuffix = "_unknown"
	PartialSuffix = ".partial"
)

// Naming overrides the derived output file names. Relative names are placed
// next to the input file.
type Naming struct {
	Known   string
	Unknown string
}

// Paths are the final locations of the two output files
type Paths struct {
	Known   string
	Unknown string
}

// DerivePaths returns <dir>/<base>_known<ext> and <dir>/<base>_unknown<ext>
// for input, unless naming says otherwise
func DerivePaths(input string, naming Naming) (Paths, error) {
	dir := filepath.Dir(input)
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	if ext == "" {
		ext = ".csv"
	}

	p := Paths{
		Known:   filepath.Join(dir, base+KnownSuffix+ext),
		Unknown: filepath.Join(dir, base+UnknownSuffix+ext),
	}
	if naming.Known != "" {
		p.Known = place(dir, naming.Known)
	}
	if naming.Unknown != "" {
		p.Unknown = place(dir, naming.Unknown)
	}

	in := filepath.Clean(input)
	switch {
	case p.Known == p.Unknown:
		return Paths{}, fmt.Errorf("known and unknown outputs both resolve to %s", p.Known)
	case p.Known == in, p.Unknown == in:
		return Paths{}, fmt.Errorf("output would overwrite input %s", input)
	}
	return p, nil
}

func place(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}
