package session

import "github.com/dkeye/Duet/internal/domain"

// ResolveRole decides who sends the offer.
//
// Direct calls use the invite-time initiator flag as is: the side that
// accepted the invite is the initiator. ID ordering says nothing about who
// invited whom, so it is never consulted there.
//
// Random matches compare transport ids so both ends reach the same answer
// without another round trip.
func ResolveRole(mode domain.Mode, isInitiator bool, localID, remoteID string) domain.Role {
	if mode == domain.ModeDirect {
		if isInitiator {
			return domain.RoleCaller
		}
		return domain.RoleCallee
	}
	if localID < remoteID {
		return domain.RoleCaller
	}
	return domain.RoleCallee
}
