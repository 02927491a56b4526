package model

import "fmt"

type OwnerKind string

const (
	OwnerAnonymous OwnerKind = "anonymous"
	OwnerUser      OwnerKind = "user"
)

// Owner identifies who a session belongs to: an anonymous device or an
// authenticated user. The store mode is captured from this once, at
// block-start time, never re-evaluated per call.
type Owner struct {
	Kind     OwnerKind
	DeviceID string
	UserID   string
}

func AnonymousOwner(deviceID string) Owner {
	return Owner{Kind: OwnerAnonymous, DeviceID: deviceID}
}

func UserOwner(userID string) Owner {
	return Owner{Kind: OwnerUser, UserID: userID}
}

func (o Owner) IsUser() bool {
	return o.Kind == OwnerUser
}

// Key is a stable identifier used for engine lookup, event channels and
// rate limiting.
func (o Owner) Key() string {
	if o.IsUser() {
		return fmt.Sprintf("user:%s", o.UserID)
	}
	return fmt.Sprintf("device:%s", o.DeviceID)
}
