/*
Package session implements the Session Registry.

The registry owns every call session and its role slots (caller, agent_a, agent_b).
Mutations are serialized per session through a lock.Manager, so unrelated calls never
block each other, and snapshots handed to callers are deep copies.

# Lifecycle

	forming -> active        (second role joins)
	forming|active <-> transferring (driven by the transfer coordinator)
	any -> closed            (last occupant leaves)

A closed session keeps its name until it is created again, which replaces it.
Observers registered with Observe are notified of departures (including the one that
closes a session) after the session lock has been released.
*/
package session
