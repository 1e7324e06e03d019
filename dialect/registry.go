package dialect

import (
	"sort"
	"strconv"

	"github.com/juju/errors"
)

// Registry holds the registered dialects keyed by mode. Registrations
// happen at startup (package init for the built-ins); Resolve may be
// called freely afterwards.
type Registry struct {
	byMode map[string][]*Dialect // sorted by Version ascending
}

func NewRegistry() *Registry {
	return &Registry{byMode: make(map[string][]*Dialect)}
}

func (self *Registry) Register(d *Dialect) {
	ds := append(self.byMode[d.Mode], d)
	sort.Slice(ds, func(i, j int) bool { return ds[i].Version < ds[j].Version })
	self.byMode[d.Mode] = ds
}

// Resolve picks the dialect for a device-reported mode and version.
//
// No dialect registered for the mode: the minimal default dialect is
// returned, never an error. This is a silent capability downgrade;
// callers must check SupportedOps of the result.
//
// Empty requestedVersion: the numerically highest version for the mode.
// Otherwise the highest version <= requested; if the device is older
// than everything registered, the lowest registered version. An explicit
// request never silently resolves to a newer dialect than asked for.
func (self *Registry) Resolve(mode, requestedVersion string) (*Dialect, error) {
	ds := self.byMode[mode]
	if len(ds) == 0 {
		return Default(), nil
	}
	if requestedVersion == "" {
		return ds[len(ds)-1], nil
	}
	want, err := strconv.Atoi(requestedVersion)
	if err != nil {
		return nil, errors.NotValidf("dialect version %q", requestedVersion)
	}
	pick := ds[0]
	for _, d := range ds {
		if d.Version <= want {
			pick = d
		} else {
			break
		}
	}
	return pick, nil
}

// Versions reports the registered versions for a mode, ascending.
func (self *Registry) Versions(mode string) []int {
	ds := self.byMode[mode]
	vs := make([]int, len(ds))
	for i, d := range ds {
		vs[i] = d.Version
	}
	return vs
}

var builtin = NewRegistry()

// Builtin returns the registry with all dialects compiled into this
// package.
func Builtin() *Registry { return builtin }
