package web

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/meetsum/internal/pkg/workflow"
)

// WsConn is interface for websocket handling
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper keeps websocket connections by session ID and pushes session changes to them
type WSConnKeeper struct {
	idConnectionMap map[string]map[WsConn]struct{}
	connectionIDMap map[WsConn]string
	mapLock         *sync.Mutex
	writeLock       *sync.Mutex
	timeOut         time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	res := &WSConnKeeper{}
	res.idConnectionMap = make(map[string]map[WsConn]struct{})
	res.connectionIDMap = make(map[WsConn]string)
	res.mapLock = &sync.Mutex{}
	res.writeLock = &sync.Mutex{}
	res.timeOut = time.Minute * 30
	return res
}

// HandleConnection loops until connection active. The first non empty message is a session ID
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	readCh := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go readMessages(conn, readCh, done)

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				break loop
			}
			kp.saveConnection(conn, msg)
			ta = time.After(kp.timeOut)
		}
	}
	goapp.Log.Debug().Msg("handleConnection finish")
	return nil
}

// readMessages passes the non empty messages to readCh until the read fails or done is closed
func readMessages(conn WsConn, readCh chan<- string, done <-chan struct{}) {
	defer close(readCh)
	defer goapp.Log.Debug().Msg("read routine ended")
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			goapp.Log.Debug().Err(err).Msg("ws read")
			return
		}
		msg := strings.TrimSpace(string(message))
		goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
		if msg == "" {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		select {
		case readCh <- msg:
		case <-done:
			return
		}
	}
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
	goapp.Log.Info().Int("active", len(kp.connectionIDMap)).Msg("ws connection closed")
}

func (kp *WSConnKeeper) deleteConnectionNoSync(conn WsConn) {
	id, found := kp.connectionIDMap[conn]
	if found {
		conns, found := kp.idConnectionMap[id]
		if found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.idConnectionMap, id)
			}
		}
	}
	delete(kp.connectionIDMap, conn)
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, id string) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connectionIDMap[conn] = id
	conns, found := kp.idConnectionMap[id]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.idConnectionMap[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Str("session", goapp.Sanitize(id)).Int("active", len(kp.connectionIDMap)).Msg("ws connection saved")
}

// GetConnections returns saved connections by session id
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	cm, found := kp.idConnectionMap[id]
	if found {
		res := []WsConn{}
		for cm := range cm {
			res = append(res, cm)
		}
		return res, true
	}
	return nil, false
}

// Changed sends the view to all session connections
func (kp *WSConnKeeper) Changed(v *workflow.View) {
	conns, found := kp.GetConnections(v.SessionID)
	if !found {
		return
	}
	kp.writeLock.Lock()
	defer kp.writeLock.Unlock()
	for _, c := range conns {
		if err := sendMsg(c, v); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
}

func sendMsg(c WsConn, v *workflow.View) error {
	if err := c.WriteJSON(v); err != nil {
		return fmt.Errorf("cannot write to websocket: %w", err)
	}
	goapp.Log.Debug().Str("session", v.SessionID).Str("state", v.State).Msg("sent view to websocket")
	return nil
}
