package rtps

// ChangeKind tells what a cache change represents.
type ChangeKind uint8

const (
	ChangeAlive ChangeKind = iota
	ChangeNotAliveDisposed
	ChangeNotAliveUnregistered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAlive:
		return "ALIVE"
	case ChangeNotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case ChangeNotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	}
	return "UNKNOWN"
}

// CacheChange is one sample in a history cache. Data holds the serialized
// payload including its encapsulation header; it is empty for dispose and
// unregister changes that carry only a key hash.
type CacheChange struct {
	Kind            ChangeKind
	Writer          GUID
	SequenceNumber  SequenceNumber
	SourceTimestamp Time
	KeyHash         [16]byte
	HasKeyHash      bool
	Data            []byte
}
