// Package rbac enforces the permission list each route declares.
package rbac

import (
	"github.com/opsboard/opsboard/internal/authz"
)

// DecisionObserver receives one call per evaluated permission check.
type DecisionObserver interface {
	ObserveDecision(role, resource, action string, allowed bool)
}

// observe reports the decision against the first required permission,
// which is the one routes list as their primary grant.
func observe(obs DecisionObserver, actor *authz.Actor, required []authz.Permission, allowed bool) {
	if obs == nil || len(required) == 0 {
		return
	}
	role := "anonymous"
	if actor != nil && actor.Role != nil {
		role = actor.Role.String()
	}
	p := required[0]
	obs.ObserveDecision(role, string(p.Resource), string(p.Action), allowed)
}
