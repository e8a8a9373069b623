package franklin

import (
	"errors"
	"fmt"
)

// Vendor status codes carried in the "code" field of every response.
const (
	codeSuccess        = 200
	codeDeviceTimeout  = 102
	codeGatewayOffline = 136
	codeBadRequest     = 400
	codeUnauthorized   = 401
)

var (
	// ErrInvalidCredentials is returned by login when the account or password
	// is wrong.
	ErrInvalidCredentials = errors.New("franklin: invalid credentials")

	// ErrAccountLocked is returned by login when the account has been locked.
	ErrAccountLocked = errors.New("franklin: account locked")

	// ErrTokenExpired matches a 401 that survived the single re-login.
	ErrTokenExpired = errors.New("franklin: token expired")

	// ErrDeviceTimeout is returned when the gateway didn't answer the cloud in
	// time.
	ErrDeviceTimeout = errors.New("franklin: device timeout")

	// ErrGatewayOffline is returned when the cloud reports the gateway as
	// disconnected.
	ErrGatewayOffline = errors.New("franklin: gateway offline")

	// ErrSwitchesMerged is returned before any write when switches 1 and 2 are
	// hardware-merged and would be set to different values.
	ErrSwitchesMerged = errors.New("franklin: smart switches 1 and 2 are merged and must be set to the same value")

	// ErrMergeFlagMissing is returned before any write when the switch record
	// doesn't carry a numeric SwMerge flag.
	ErrMergeFlagMissing = errors.New("franklin: switch record missing SwMerge flag")
)

// ProtocolError is returned for any response whose code isn't 200. It matches
// ErrDeviceTimeout, ErrGatewayOffline and ErrTokenExpired through errors.Is
// for the codes that have a name.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("franklin api error: code %d", e.Code)
	}
	return fmt.Sprintf("franklin api error: code %d: %s", e.Code, e.Message)
}

// Is implements errors.Is
func (e *ProtocolError) Is(target error) bool {
	switch e.Code {
	case codeDeviceTimeout:
		return target == ErrDeviceTimeout
	case codeGatewayOffline:
		return target == ErrGatewayOffline
	case codeUnauthorized:
		return target == ErrTokenExpired
	}
	return false
}

// checkCode classifies a decoded command response.
func checkCode(fr Response) error {
	if fr.Code == codeSuccess {
		return nil
	}
	return &ProtocolError{Code: fr.Code, Message: fr.Message}
}
