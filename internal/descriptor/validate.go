package descriptor

import (
	"errors"
	"fmt"
)

// Validate checks the references between entries. Every problem is
// reported, joined into one error.
func Validate(d *Descriptor) error {
	var errs []error
	if _, ok := d.DBConfig(d.CurrentDBConfig); !ok {
		errs = append(errs, fmt.Errorf("currentDBConfig %q: %w", d.CurrentDBConfig, ErrUnknownReference))
	}
	for _, r := range d.RemoteInstances {
		if r.DBConfig == "" {
			continue
		}
		if _, ok := d.DBConfig(r.DBConfig); !ok {
			errs = append(errs, fmt.Errorf("remoteInstance %q: dbConfig %q: %w", r.ID, r.DBConfig, ErrUnknownReference))
		}
	}
	for _, m := range d.Mounts {
		if _, ok := d.RemoteInstance(m.InstanceID); !ok {
			errs = append(errs, fmt.Errorf("mount %q: remote instance %q: %w", m.Path, m.InstanceID, ErrUnknownReference))
		}
	}
	return errors.Join(errs...)
}
