package protocol

import "strings"

// CommandKind tells how many replies a command produces and who receives them.
type CommandKind uint8

const (
	// KindOrdinary commands produce exactly one reply.
	KindOrdinary CommandKind = iota

	// KindSubscribe commands (SUBSCRIBE, PSUBSCRIBE, SSUBSCRIBE) produce one
	// confirmation per name, then pushed messages until unsubscribed.
	KindSubscribe

	// KindUnsubscribe commands produce one confirmation per name.
	KindUnsubscribe

	// KindMonitor is MONITOR, one +OK followed by a line per executed command.
	KindMonitor

	// KindReset is RESET, it leaves both subscribed and monitoring mode.
	KindReset
)

func (k CommandKind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindMonitor:
		return "monitor"
	case KindReset:
		return "reset"
	default:
		return "ordinary"
	}
}

// Persistent returns true for commands whose single submission yields an
// unbounded stream of replies.
func (k CommandKind) Persistent() bool {
	return k == KindSubscribe || k == KindMonitor
}

// Namespace is one of the independent subscription spaces.
type Namespace uint8

const (
	Channels Namespace = iota
	Patterns
	ShardChannels
)

func (n Namespace) String() string {
	switch n {
	case Patterns:
		return "patterns"
	case ShardChannels:
		return "shard channels"
	default:
		return "channels"
	}
}

// ClassifyCommand inspects the command name, args[0].
func ClassifyCommand(args [][]byte) (CommandKind, Namespace) {
	if len(args) == 0 {
		return KindOrdinary, Channels
	}

	switch strings.ToUpper(string(args[0])) {
	case "SUBSCRIBE":
		return KindSubscribe, Channels
	case "PSUBSCRIBE":
		return KindSubscribe, Patterns
	case "SSUBSCRIBE":
		return KindSubscribe, ShardChannels
	case "UNSUBSCRIBE":
		return KindUnsubscribe, Channels
	case "PUNSUBSCRIBE":
		return KindUnsubscribe, Patterns
	case "SUNSUBSCRIBE":
		return KindUnsubscribe, ShardChannels
	case "MONITOR":
		return KindMonitor, Channels
	case "RESET":
		return KindReset, Channels
	default:
		return KindOrdinary, Channels
	}
}

// PushKind classifies a pub/sub frame.
type PushKind uint8

const (
	PushMessage PushKind = iota + 1
	PushSubscribe
	PushUnsubscribe
)

// Push is a decoded pub/sub frame.
type Push struct {
	Kind      PushKind
	Namespace Namespace

	// Name is the channel or pattern the frame belongs to. It is nil for an
	// unsubscribe confirmation sent while nothing was subscribed.
	Name []byte

	// Channel is the channel a message was published to. For pattern
	// messages it differs from Name.
	Channel []byte

	// Payload is the published message.
	Payload Reply

	// Count is the number of subscriptions left after a confirmation.
	Count int64
}

// ParsePush recognises subscription confirmations and published messages.
func ParsePush(r Reply) (Push, bool) {
	if r.Type != TypeArray || len(r.Elems) < 3 {
		return Push{}, false
	}

	head := r.Elems[0]
	if head.Type != TypeBulkString && head.Type != TypeStatus {
		return Push{}, false
	}

	switch string(head.Str) {
	case "message":
		return message(r, Channels)
	case "smessage":
		return message(r, ShardChannels)
	case "pmessage":
		if len(r.Elems) != 4 {
			return Push{}, false
		}
		return Push{
			Kind:      PushMessage,
			Namespace: Patterns,
			Name:      r.Elems[1].Str,
			Channel:   r.Elems[2].Str,
			Payload:   r.Elems[3],
		}, true
	case "subscribe":
		return confirmation(r, PushSubscribe, Channels)
	case "psubscribe":
		return confirmation(r, PushSubscribe, Patterns)
	case "ssubscribe":
		return confirmation(r, PushSubscribe, ShardChannels)
	case "unsubscribe":
		return confirmation(r, PushUnsubscribe, Channels)
	case "punsubscribe":
		return confirmation(r, PushUnsubscribe, Patterns)
	case "sunsubscribe":
		return confirmation(r, PushUnsubscribe, ShardChannels)
	}

	return Push{}, false
}

func message(r Reply, ns Namespace) (Push, bool) {
	if len(r.Elems) != 3 {
		return Push{}, false
	}
	return Push{
		Kind:      PushMessage,
		Namespace: ns,
		Name:      r.Elems[1].Str,
		Channel:   r.Elems[1].Str,
		Payload:   r.Elems[2],
	}, true
}

func confirmation(r Reply, kind PushKind, ns Namespace) (Push, bool) {
	if len(r.Elems) != 3 || r.Elems[2].Type != TypeInteger {
		return Push{}, false
	}
	return Push{
		Kind:      kind,
		Namespace: ns,
		Name:      r.Elems[1].Str,
		Count:     r.Elems[2].Integer,
	}, true
}
