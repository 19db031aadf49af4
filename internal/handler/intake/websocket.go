package intake

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	intakeservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/intake"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AudioMessage 音频块，audioData 为 base64
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
}

// TextMessage 描述文本
type TextMessage struct {
	Text string `json:"text"`
}

// TagMessage 快捷标签，空字符串表示清除
type TagMessage struct {
	Tag string `json:"tag"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsConn 串行化写操作：快照推送与请求应答来自不同 goroutine
type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
	// recording 只在读循环中访问，记录本连接是否开启了尚未结束的录音
	recording bool
}

func (c *wsConn) send(kind string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed session=%s: %v", kind, c.sessionID, err)
	}
}

func (c *wsConn) sendError(err error) {
	c.send("error", map[string]string{
		"code":    errorCode(err),
		"message": err.Error(),
	})
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Close()
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 把会话的状态变化推送给客户端，并接受表单操作与二进制音频帧
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn, sessionID: session.ID()}
	log.Printf("[websocket] new connection for session: %s", session.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		// 客户端在录音中途断开时释放麦克风
		if ws.recording {
			if _, err := session.AbortRecording(); err == nil {
				log.Printf("[websocket] released capture of disconnected client session=%s", session.ID())
			}
		}
	}()

	updates, unsubscribe := session.Subscribe()
	ws.send("snapshot", session.Snapshot())
	go h.forwardSnapshots(ctx, ws, session, updates, unsubscribe)
	go h.pingLoop(ctx, ws)

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		if kind == websocket.BinaryMessage {
			if err := session.AppendAudio(data); err != nil {
				ws.sendError(err)
			}
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.send("error", map[string]string{"code": "invalid_input", "message": "invalid message"})
			continue
		}
		h.handleMessage(ctx, ws, session, &msg)
	}
}

// forwardSnapshots 转发订阅到的快照并负责退订。会话关闭时通知客户端并断开；
// 因消费过慢被移出订阅时重新订阅，并补发一份当前快照
func (h *Handler) forwardSnapshots(ctx context.Context, ws *wsConn, session *intakeservice.Session, updates <-chan intakeservice.Snapshot, unsubscribe func()) {
	defer func() { unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if ok {
				ws.send("snapshot", snap)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if session.Closed() {
				ws.send("closed", nil)
				ws.close()
				return
			}
			log.Printf("[websocket] resubscribing slow client session=%s", session.ID())
			unsubscribe()
			updates, unsubscribe = session.Subscribe()
			ws.send("snapshot", session.Snapshot())
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, ws *wsConn, session *intakeservice.Session, msg *inboundMessage) {
	var err error
	switch msg.Type {
	case "start":
		if _, err = session.StartRecording(ctx); err == nil {
			ws.recording = true
		}
	case "audio":
		var audio AudioMessage
		if err = decodePayload(msg.Data, &audio); err != nil {
			break
		}
		if len(audio.AudioData) > 0 {
			err = session.AppendAudio(audio.AudioData)
		}
	case "stop":
		ws.recording = false
		_, err = session.StopRecording(ctx)
	case "text":
		var text TextMessage
		if err = decodePayload(msg.Data, &text); err != nil {
			break
		}
		_, err = session.UpdateDraft(&text.Text, nil)
	case "tag":
		var tag TagMessage
		if err = decodePayload(msg.Data, &tag); err != nil {
			break
		}
		_, err = session.UpdateDraft(nil, &tag.Tag)
	case "classify":
		_, err = session.Classify(ctx)
	case "submit":
		record, _, submitErr := session.Submit(ctx)
		if submitErr == nil {
			ws.send("submitted", record)
		}
		err = submitErr
	case "snapshot":
		ws.send("snapshot", session.Snapshot())
	default:
		ws.send("error", map[string]string{"code": "invalid_input", "message": "unsupported message type: " + msg.Type})
		return
	}

	if err != nil {
		ws.sendError(err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}
