package catalog

import (
	"fmt"
	"strings"
)

// Tunisia lists the Tunisian airports fetched when no catalog is configured.
var Tunisia = []string{
	"TUN", "MIR", "NBE", "DJE", "TOE", "GAE", "GAF", "SFA", "TBJ", "EBM",
}

// Catalog is an ordered list of IATA airport codes.
type Catalog []string

// Default returns a copy of the Tunisian catalog.
func Default() Catalog {
	return append(Catalog(nil), Tunisia...)
}

// Parse splits a comma separated list such as "TUN, djE" into a validated catalog.
func Parse(s string) (Catalog, error) {
	var c Catalog
	for _, code := range strings.Split(s, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		c = append(c, code)
	}
	return New(c)
}

// New normalizes codes to upper case and validates them. Order is kept, duplicates are dropped.
func New(codes []string) (Catalog, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("airport catalog is empty")
	}

	seen := make(map[string]bool, len(codes))
	c := make(Catalog, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !isIATA(code) {
			return nil, fmt.Errorf("invalid IATA airport code %q", code)
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		c = append(c, code)
	}
	return c, nil
}

func (c Catalog) String() string {
	return strings.Join(c, ",")
}

func isIATA(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
