package redis

import "strings"

const defaultNamespace = "loyalty"

// Keys builds every key the services use, so the layout lives in one place:
//
//	<ns>:idempotency:<scope>:<id>
//	<ns>:rate_limit:<scope>
//	<ns>:session:access:<jti>
//	<ns>:lock:<name>
//	<ns>:notify:user:<user id>   (pub/sub channel)
type Keys struct {
	ns string
}

func NewKeys(namespace string) Keys {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keys{ns: namespace}
}

func (k Keys) IdempotencyKey(scope, id string) string { return k.join("idempotency", scope, id) }

func (k Keys) RateLimitKey(scope string) string { return k.join("rate_limit", scope) }

// AccessSessionKey backs the server-side half of an access token.
func (k Keys) AccessSessionKey(accessID string) string { return k.join("session", "access", accessID) }

func (k Keys) LockKey(name string) string { return k.join("lock", name) }

// NotificationChannel is the per-user realtime channel the web client subscribes to.
func (k Keys) NotificationChannel(userID string) string { return k.join("notify", "user", userID) }

// join drops empty segments so a missing id never yields "a::b".
func (k Keys) join(parts ...string) string {
	ns := k.ns
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
