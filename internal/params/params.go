// Package params resolves named job parameters.
package params

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingParameter reports a requested name with no value.
var ErrMissingParameter = errors.New("params: missing parameter")

// Resolver looks up job parameters by name.
type Resolver interface {
	Resolve(names ...string) (map[string]string, error)
}

// MapResolver resolves from a fixed map.
type MapResolver map[string]string

func (m MapResolver) Resolve(names ...string) (map[string]string, error) {
	return resolve(names, func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	})
}

// ViperResolver resolves names under a key prefix of a viper instance, so
// flags bound to "params.begin_date", AVROETL_PARAMS_BEGIN_DATE and a
// params: block in the config file all work.
type ViperResolver struct {
	V      *viper.Viper
	Prefix string
}

func (r ViperResolver) Resolve(names ...string) (map[string]string, error) {
	return resolve(names, func(name string) (string, bool) {
		key := name
		if r.Prefix != "" {
			key = r.Prefix + "." + name
		}
		if !r.V.IsSet(key) {
			return "", false
		}
		return r.V.GetString(key), true
	})
}

// resolve collects every missing name before failing so one error lists them all.
func resolve(names []string, get func(string) (string, bool)) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for _, n := range names {
		v, ok := get(n)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, n)
			continue
		}
		out[n] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	return out, nil
}
