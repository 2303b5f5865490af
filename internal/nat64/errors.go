package nat64

import "errors"

// Sentinel errors returned by the nat64 package.
var (
	// ErrPoolExhausted is returned when a Pool4 section (and its
	// fallback addresses) has no free port left for the requested
	// parity class.
	ErrPoolExhausted = errors.New("nat64: pool4 exhausted")

	// ErrNoBinding is returned on the IPv4-ingress path when no BIB
	// entry exists for the destination transport address.
	ErrNoBinding = errors.New("nat64: no binding for destination")

	// ErrNoSession is returned on the IPv4-ingress path when a BIB entry
	// exists but no session matches the peer, and the protocol/policy
	// does not allow provisional session creation.
	ErrNoSession = errors.New("nat64: no session for peer")

	// ErrNotFound is returned by Pool4.Remove when the address is not
	// registered, and by Pool4.Return when the returned address is not.
	ErrNotFound = errors.New("nat64: not found")

	// ErrInconsistent is returned when an address or entry is present
	// in a strict subset of the indices that should all agree on it.
	// Observing this indicates a bug in the caller or in this package,
	// not a normal runtime condition.
	ErrInconsistent = errors.New("nat64: inconsistent index state")

	// ErrAlreadyPresent is returned by Pool4.Register and BIB.Create
	// when the target is already registered/bound.
	ErrAlreadyPresent = errors.New("nat64: already present")

	// ErrConfig covers malformed configuration (bad prefix length,
	// empty pool, non-positive timeout).
	ErrConfig = errors.New("nat64: invalid configuration")

	// ErrUnsupportedPrefixLen is returned by ExtractV4 for any prefix
	// length other than the six RFC 6052 §2.2 well-known lengths.
	ErrUnsupportedPrefixLen = errors.New("nat64: unsupported prefix length")

	// ErrNotV4, ErrNotV6 guard ExtractV4/address-kind mismatches.
	ErrNotV6 = errors.New("nat64: address is not an IPv6 address")
	ErrNotV4 = errors.New("nat64: address is not an IPv4 address")

	// ErrBIBNotEmpty guards the BIB-removal precondition: a BIB entry
	// must have no live sessions before it is unlinked and its port
	// returned to Pool4.
	ErrBIBNotEmpty = errors.New("nat64: bib entry still has live sessions")
)
