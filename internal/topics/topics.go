// Package topics centralizes the literal topic map (§6.1), which is
// compatibility-critical: every component must agree on these strings
// byte-for-byte.
package topics

import "fmt"

func Public(roomID string) string {
	return fmt.Sprintf("rooms/%s/public", roomID)
}

func PublicCandidates(roomID string) string {
	return fmt.Sprintf("rooms/%s/public_candidates", roomID)
}

func Control(roomID string) string {
	return fmt.Sprintf("rooms/%s/control", roomID)
}

func Summary(roomID string) string {
	return fmt.Sprintf("rooms/%s/summary", roomID)
}

func Inbox(roomID, agentID string) string {
	return fmt.Sprintf("rooms/%s/agents/%s/inbox", roomID, agentID)
}

// InboxWildcard subscribes to every agent's inbox under roomID, used by
// components that need to observe dispatch traffic (e.g. Sink, if ever
// extended beyond public-only archiving).
func InboxWildcard(roomID string) string {
	return fmt.Sprintf("rooms/%s/agents/+/inbox", roomID)
}

func Heartbeat(roomID, agentID string) string {
	return fmt.Sprintf("rooms/%s/agents/%s/heartbeat", roomID, agentID)
}

// HeartbeatWildcard subscribes to every agent's heartbeat under roomID,
// used by the Facilitator to maintain its presence registry.
func HeartbeatWildcard(roomID string) string {
	return fmt.Sprintf("rooms/%s/agents/+/heartbeat", roomID)
}
