package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// pong 等待时间，超过视为连接死亡
	pongWait = 60 * time.Second
	// ping 间隔，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
	// 单条消息上限。信令里的 SDP offer 可以到几 KB，放宽到 16KB。
	maxMessageSize = 16 * 1024
	// 出站缓冲大小。转写事件频率高，缓冲大一些避免误杀慢客户端。
	sendBufferSize = 256
)

// Client 代表一条 WebSocket 连接。
// role 与 roomCode 在 join_room 成功后由 hub 循环内赋值，
// 此后只在 hub 循环里读写，不需要额外加锁。
type Client struct {
	ID     string
	UserID uint

	hub  *Hub
	conn *websocket.Conn

	// send 的关闭时机与投递方 (hub 循环、评判 worker) 并发，必须经
	// sendMu/sendClosed 协调，绝不能裸 close
	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	roomCode string
	role     string
}

// NewClient 包装一条已升级的连接。身份来自 JWT 中间件。
func NewClient(h *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run 注册到 hub 并启动读写泵。写泵在当前 goroutine 之外运行，
// 读泵占用调用方 goroutine 直到连接关闭。
func (c *Client) Run() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

// QueueMessage 非阻塞投递一条出站消息。缓冲满说明客户端读得太慢，
// 丢弃消息并记录，由 ping/pong 机制最终淘汰死连接。
// 连接已注销时静默丢弃：评判 worker 的广播可能与注销并发到达。
func (c *Client) QueueMessage(message []byte) {
	if message == nil {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- message:
	default:
		logrus.WithFields(logrus.Fields{
			"conn_id": c.ID,
			"user_id": c.UserID,
		}).Warn("Client send buffer full, dropping message")
	}
}

// closeSend 关闭出站通道，幂等。之后的 QueueMessage 都是 no-op。
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"conn_id": c.ID,
					"error":   err.Error(),
				}).Warn("Unexpected websocket close")
			}
			return
		}
		c.hub.Inbound(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
