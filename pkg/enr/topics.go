// Package enr defines the boundary between Mycelia's coordination core and
// the pub/sub overlay it rides on. The overlay itself — the libp2p-style
// transport, gossipsub, mDNS/DHT discovery — is an external collaborator
//; this package only names the capability the core requires of it
// (PubSub) and the wire envelope exchanged over the reserved topics.
package enr

// Reserved topic strings.
const (
	ChatTopic         = "/mycelial/1.0.0/chat"
	DirectTopic       = "/mycelial/1.0.0/direct"
	AnnounceTopic     = "/mycelial/1.0.0/announce"
	VouchTopic        = "/mycelial/1.0.0/vouch"
	CreditGossipTopic = "/mycelial/1.0.0/credit"
	GovernanceTopic   = "/mycelial/1.0.0/governance"
	ResourceTopic     = "/mycelial/1.0.0/resource"

	GradientTopic = "/vudo/enr/gradient/1.0.0"
	CreditTopic   = "/vudo/enr/credit/1.0.0"
	ElectionTopic = "/vudo/enr/election/1.0.0"
	SeptalTopic   = "/vudo/enr/septal/1.0.0"
	RaftTopic     = "/vudo/enr/raft/1.0.0"
)

// RoomTopic formats the per-room chat topic, the one parameterized reserved
// topic.
func RoomTopic(roomID string) string {
	return "/mycelial/1.0.0/room/" + roomID
}

// Topics returns the four ENR topics the EnrBridge subscribes to.
func Topics() []string {
	return []string{GradientTopic, CreditTopic, ElectionTopic, SeptalTopic}
}
