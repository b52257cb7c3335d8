package extract

import (
	"fmt"
	"sort"
)

// Registry returns every extractor by name.
func Registry() map[string]Extractor {
	all := []Extractor{
		JSONLD{},
		OpenGraph{},
		NewOtto(),
		Amazon{},
		NewZalando(),
	}

	m := make(map[string]Extractor, len(all))
	for _, e := range all {
		m[e.Name()] = e
	}
	return m
}

func Lookup(registry map[string]Extractor, name string) (Extractor, error) {
	if e, ok := registry[name]; ok {
		return e, nil
	}

	known := make([]string, 0, len(registry))
	for k := range registry {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown extractor %q (known: %v)", name, known)
}
