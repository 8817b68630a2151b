package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

const (
	// DefaultConnTimeout closes idle subscriptions
	DefaultConnTimeout = 30 * time.Minute
	maxSongsPerConn    = 20
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper keeps song subscriptions of websocket connections.
// A client sends song ids separated by comma, every message replaces its subscription
type WSConnKeeper struct {
	mapLock  sync.Mutex
	bySong   map[string]map[WsConn]struct{}
	byConn   map[WsConn][]string
	timeOut  time.Duration
	maxSongs int
}

// NewWSConnKeeper creates manager, zero timeout means DefaultConnTimeout
func NewWSConnKeeper(timeOut time.Duration) *WSConnKeeper {
	if timeOut <= 0 {
		timeOut = DefaultConnTimeout
	}
	return &WSConnKeeper{bySong: map[string]map[WsConn]struct{}{}, byConn: map[WsConn][]string{},
		timeOut: timeOut, maxSongs: maxSongsPerConn}
}

// HandleConnection loops until connection is active, the last subscription of the connection is kept
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.unsubscribe(conn)
	defer conn.Close()
	readCh := make(chan []string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(readCh)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("read ended")
				return
			}
			if ids := parseIDs(string(message), kp.maxSongs); len(ids) > 0 {
				select {
				case readCh <- ids:
				case <-done:
					return
				}
			} else {
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	ta := time.After(kp.timeOut)
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeout")
			return nil
		case ids, ok := <-readCh:
			if !ok {
				return nil
			}
			kp.subscribe(conn, ids)
			ta = time.After(kp.timeOut)
		}
	}
}

func parseIDs(msg string, max int) []string {
	var res []string
	seen := map[string]bool{}
	for _, s := range strings.Split(msg, ",") {
		id := strings.TrimSpace(s)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
		if len(res) == max {
			break
		}
	}
	return res
}

func (kp *WSConnKeeper) unsubscribe(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.unsubscribeNoSync(conn)
}

func (kp *WSConnKeeper) unsubscribeNoSync(conn WsConn) {
	for _, id := range kp.byConn[conn] {
		if conns, ok := kp.bySong[id]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.bySong, id)
			}
		}
	}
	delete(kp.byConn, conn)
}

func (kp *WSConnKeeper) subscribe(conn WsConn, ids []string) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.unsubscribeNoSync(conn)
	kp.byConn[conn] = ids
	for _, id := range ids {
		conns, ok := kp.bySong[id]
		if !ok {
			conns = map[WsConn]struct{}{}
			kp.bySong[id] = conns
		}
		conns[conn] = struct{}{}
	}
	goapp.Log.Info().Strs("IDs", ids).Int("active", len(kp.byConn)).Msg("subscribed")
}

// GetConnections returns connections subscribed to the song
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	cm, found := kp.bySong[id]
	if !found {
		return nil, false
	}
	res := make([]WsConn, 0, len(cm))
	for c := range cm {
		res = append(res, c)
	}
	return res, true
}
