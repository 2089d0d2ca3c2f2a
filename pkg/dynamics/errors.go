package dynamics

import (
	"errors"
	"fmt"
)

// ErrNoRigidBody is wrapped by SetupFault when the controller is built without a body.
var ErrNoRigidBody = errors.New("rigid body not found")

// SetupFault reports a missing collaborator at construction time.
// The controller it accompanies is permanently disabled.
type SetupFault struct {
	Vehicle string
	Err     error
}

func (f *SetupFault) Error() string {
	if f.Vehicle == "" {
		return fmt.Sprintf("vehicle setup: %v", f.Err)
	}
	return fmt.Sprintf("vehicle %q setup: %v", f.Vehicle, f.Err)
}

func (f *SetupFault) Unwrap() error {
	return f.Err
}
