package websocket

// Event 连接管理器发出的事件，总是在事件循环中投递给订阅者
type Event interface {
	isEvent()
}

// Opened 连接已建立
type Opened struct{}

// Message 收到一条文本消息，尚未解析
type Message struct {
	Data []byte
}

// Closed 连接已关闭。UserInitiated为false时已经安排了重连
type Closed struct {
	UserInitiated bool
	Err           error
}

// Error 传输层错误，只记录，不改变状态；之后总会跟一个Closed
type Error struct {
	Err error
}

func (Opened) isEvent()  {}
func (Message) isEvent() {}
func (Closed) isEvent()  {}
func (Error) isEvent()   {}
