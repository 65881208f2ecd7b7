package mtproto

import (
	"strings"
	"sync"

	"github.com/gotd/td/tg"

	"telegram-mcp/internal/domain"
)

// peerInfo - то, что известно о пире из векторов users/chats ответов API.
type peerInfo struct {
	peer         domain.Peer
	accessHash   int64
	title        string
	username     string
	firstName    string
	lastName     string
	bot          bool
	megagroup    bool
	membersCount int
}

func (p peerInfo) name() string {
	if p.peer.Kind != domain.PeerUser {
		return p.title
	}
	return strings.TrimSpace(p.firstName + " " + p.lastName)
}

// peerStore запоминает access hash и описание каждого встреченного пира.
type peerStore struct {
	mu    sync.RWMutex
	peers map[domain.Peer]peerInfo
}

func newPeerStore() *peerStore {
	return &peerStore{peers: make(map[domain.Peer]peerInfo)}
}

func (s *peerStore) get(p domain.Peer) (peerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.peers[p]
	return info, ok
}

func (s *peerStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// apply сохраняет сущности из ответа API.
func (s *peerStore) apply(users []tg.UserClass, chats []tg.ChatClass) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		p := domain.Peer{Kind: domain.PeerUser, ID: user.ID}
		info := peerInfo{
			peer:      p,
			firstName: user.FirstName,
			lastName:  user.LastName,
			username:  user.Username,
			bot:       user.Bot,
		}
		if hash, ok := user.GetAccessHash(); ok {
			info.accessHash = hash
		} else if prev, ok := s.peers[p]; ok {
			// "min"-конструктор приходит без хеша, сохраняем известный.
			info.accessHash = prev.accessHash
		}
		s.peers[p] = info
	}

	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Chat:
			p := domain.Peer{Kind: domain.PeerGroup, ID: chat.ID}
			s.peers[p] = peerInfo{peer: p, title: chat.Title, membersCount: chat.ParticipantsCount}
		case *tg.ChatForbidden:
			p := domain.Peer{Kind: domain.PeerGroup, ID: chat.ID}
			s.peers[p] = peerInfo{peer: p, title: chat.Title}
		case *tg.Channel:
			p := domain.Peer{Kind: domain.PeerChannel, ID: chat.ID}
			info := peerInfo{peer: p, title: chat.Title, username: chat.Username, megagroup: chat.Megagroup}
			if hash, ok := chat.GetAccessHash(); ok {
				info.accessHash = hash
			} else if prev, ok := s.peers[p]; ok {
				info.accessHash = prev.accessHash
			}
			if count, ok := chat.GetParticipantsCount(); ok {
				info.membersCount = count
			}
			s.peers[p] = info
		case *tg.ChannelForbidden:
			p := domain.Peer{Kind: domain.PeerChannel, ID: chat.ID}
			s.peers[p] = peerInfo{peer: p, title: chat.Title, accessHash: chat.AccessHash, megagroup: chat.Megagroup}
		}
	}
}

// inputPeer строит адрес для запроса. ok=false, если для пира нужен хеш, а он неизвестен;
// в этом случае возвращается адрес с нулевым хешем.
func (s *peerStore) inputPeer(p domain.Peer) (tg.InputPeerClass, bool) {
	info, known := s.get(p)

	switch p.Kind {
	case domain.PeerGroup:
		return &tg.InputPeerChat{ChatID: p.ID}, true
	case domain.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ID, AccessHash: info.accessHash}, known
	default:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: info.accessHash}, known
	}
}

// peerOf переводит tg.PeerClass в domain.Peer.
func peerOf(p tg.PeerClass) (domain.Peer, bool) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return domain.Peer{Kind: domain.PeerUser, ID: v.UserID}, true
	case *tg.PeerChat:
		return domain.Peer{Kind: domain.PeerGroup, ID: v.ChatID}, true
	case *tg.PeerChannel:
		return domain.Peer{Kind: domain.PeerChannel, ID: v.ChannelID}, true
	default:
		return domain.Peer{}, false
	}
}
