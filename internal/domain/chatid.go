package domain

// ChannelIDOffset - смещение, с помощью которого идентификаторы каналов и супергрупп
// отображаются в отрицательный диапазон Bot API: canonical = -ChannelIDOffset - channelID.
const ChannelIDOffset int64 = 1_000_000_000_000

// PeerKind определяет, к какому пространству идентификаторов относится чат.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerGroup
	PeerChannel
)

// String возвращает имя вида пира для логов.
func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerGroup:
		return "group"
	case PeerChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Peer - чат в "родном" адресном пространстве MTProto: вид и настоящий идентификатор.
type Peer struct {
	Kind PeerKind
	ID   int64
}

// EncodeChatID переводит пару (вид, настоящий ID) в канонический идентификатор.
func EncodeChatID(p Peer) int64 {
	switch p.Kind {
	case PeerGroup:
		return -p.ID
	case PeerChannel:
		return -ChannelIDOffset - p.ID
	default:
		return p.ID
	}
}

// DecodeChatID выполняет обратное преобразование канонического идентификатора.
// Диапазоны не пересекаются: >= 0 - пользователь, (-1e12, 0) - группа, <= -1e12 - канал.
func DecodeChatID(id int64) Peer {
	switch {
	case id >= 0:
		return Peer{Kind: PeerUser, ID: id}
	case id > -ChannelIDOffset:
		return Peer{Kind: PeerGroup, ID: -id}
	default:
		return Peer{Kind: PeerChannel, ID: -ChannelIDOffset - id}
	}
}

// ChatTypeOf классифицирует пира. Для каналов флаг megagroup отличает супергруппу от канала.
func ChatTypeOf(kind PeerKind, megagroup bool) ChatType {
	switch kind {
	case PeerGroup:
		return ChatTypeGroup
	case PeerChannel:
		if megagroup {
			return ChatTypeSupergroup
		}
		return ChatTypeChannel
	default:
		return ChatTypePrivate
	}
}
