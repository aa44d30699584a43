// Package policy vetoes logins according to a config.Policy.
//
// Gate is registered on a session.Server as an AboutToConnectHook. It checks,
// in order, the required login keys, banned addresses, banned user names,
// the password and the capacity limit, and rejects with the first failing
// reason.
package policy
