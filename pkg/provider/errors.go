package provider

import "errors"

var (
	// ErrRepeatDAppName is returned when the owner already has a DApp with the name
	ErrRepeatDAppName = errors.New("dapp name already in use")

	// ErrInstantiate is returned when no online resource can host the request
	ErrInstantiate = errors.New("no resource can host the deployment")

	// ErrInvalidResourceIndex is returned for an unknown resource id
	ErrInvalidResourceIndex = errors.New("invalid resource index")

	// ErrResourceNotOwnedByAccount is returned when the caller does not own the resource
	ErrResourceNotOwnedByAccount = errors.New("resource not owned by account")

	// ErrNotHaveDApp is returned when the caller does not own the DApp
	ErrNotHaveDApp = errors.New("account does not have the dapp")

	// ErrInvalidDAppName is returned for an empty name or one the caller does not own
	ErrInvalidDAppName = errors.New("invalid dapp name")

	// ErrDAppRedistribution is returned when a DApp cannot be moved because its
	// records are inconsistent
	ErrDAppRedistribution = errors.New("dapp redistribution failed")

	// ErrInvalidDAppIndex is returned for an unknown DApp id
	ErrInvalidDAppIndex = errors.New("invalid dapp index")

	// ErrClearDownlineResourceInformation is returned when an offline resource
	// cannot be removed from its owner's index
	ErrClearDownlineResourceInformation = errors.New("failed to clear offline resource information")

	// ErrInvalidMethod is returned for a malformed deployment method
	ErrInvalidMethod = errors.New("invalid deployment method")

	// ErrGenesisApplied is returned when genesis is loaded into a non-empty state
	ErrGenesisApplied = errors.New("state already initialized")
)
