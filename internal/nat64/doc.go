// Package nat64 implements the filtering-and-updating core of a stateful
// NAT64 translator: the Binding Information Base (BIB), the per-BIB
// session table, the IPv4 transport-address pool (Pool4), the TCP state
// machine, and the multi-queue expiry reaper that ties them together.
//
// Header rewriting, checksum adjustment, and the kernel packet hook are
// external collaborators and live outside this package; Manager.Process
// only returns an Accept/Drop verdict and mutates translation state.
package nat64
