// Package ui 会话的展示层：连接状态、说话状态、智能体文本和麦克风音量。
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Presenter 接收会话产生的可视化事件，所有调用来自事件循环
type Presenter interface {
	// SetConnected 连接状态变化，断开时不应提供语音按钮
	SetConnected(connected bool)
	// SetSpeaking 智能体开始或停止说话
	SetSpeaking(speaking bool)
	// AppendText 追加智能体的文本，同一个messageID属于同一条消息
	AppendText(messageID, text string)
	StartVisualizer()
	StopVisualizer()
	// SetLevel 麦克风音量，0到1
	SetLevel(level float64)
	// Notice 提示用户，例如音频设备不可用
	Notice(msg string)
}

const (
	colorGreen  = "#22C55E"
	colorRed    = "#EF4444"
	colorSky    = "#38BDF8"
	colorAmber  = "#F59E0B"
	colorGray   = "#9CA3AF"
	levelWidth  = 20
	levelBlocks = "█"
)

// Terminal 把事件渲染到终端
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	status  lipgloss.Style
	offline lipgloss.Style
	agent   lipgloss.Style
	speak   lipgloss.Style
	notice  lipgloss.Style
	meter   lipgloss.Style

	connected     bool
	speaking      bool
	visualizer    bool
	messageID     string
	lastLevelBars int
	inLine        bool // 当前行未换行（文本流或音量条）
}

// NewTerminal 创建终端展示层
func NewTerminal(out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out:           out,
		status:        r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorGreen)),
		offline:       r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorRed)),
		agent:         r.NewStyle().Foreground(lipgloss.Color(colorSky)),
		speak:         r.NewStyle().Italic(true).Foreground(lipgloss.Color(colorGray)),
		notice:        r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAmber)),
		meter:         r.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		lastLevelBars: -1,
	}
}

// SetConnected implements Presenter.
func (t *Terminal) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if connected == t.connected {
		return
	}
	t.connected = connected
	if connected {
		t.println(t.status.Render("● 已连接") + " 输入文字发送，/mic 开启语音")
	} else {
		t.println(t.offline.Render("○ 连接已断开"))
	}
}

// SetSpeaking implements Presenter.
func (t *Terminal) SetSpeaking(speaking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if speaking == t.speaking {
		return
	}
	t.speaking = speaking
	if speaking {
		t.println(t.speak.Render("智能体正在说话..."))
	} else {
		t.println(t.speak.Render("智能体说完了"))
	}
}

// AppendText implements Presenter.
func (t *Terminal) AppendText(messageID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if messageID != t.messageID {
		t.endLine()
		t.messageID = messageID
		fmt.Fprint(t.out, t.agent.Render("智能体: "))
	}
	fmt.Fprint(t.out, text)
	t.inLine = true
}

// StartVisualizer implements Presenter.
func (t *Terminal) StartVisualizer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visualizer = true
	t.lastLevelBars = -1
	t.println(t.status.Render("🎤 语音模式已开启") + " /stop 关闭")
}

// StopVisualizer implements Presenter.
func (t *Terminal) StopVisualizer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.visualizer {
		return
	}
	t.visualizer = false
	t.println(t.speak.Render("语音模式已关闭"))
}

// SetLevel implements Presenter.
func (t *Terminal) SetLevel(level float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.visualizer {
		return
	}
	bars := LevelBars(level, levelWidth)
	if bars == t.lastLevelBars {
		return
	}
	t.lastLevelBars = bars
	// 流式文本输出时不覆盖当前行
	if t.inLine && t.messageID != "" {
		return
	}
	fmt.Fprint(t.out, "\r"+t.meter.Render(strings.Repeat(levelBlocks, bars))+strings.Repeat(" ", levelWidth-bars))
	t.inLine = true
}

// Notice implements Presenter.
func (t *Terminal) Notice(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println(t.notice.Render("! " + msg))
}

// LevelBars 把0到1的音量换算成音量条的格数
func LevelBars(level float64, width int) int {
	if level <= 0 {
		return 0
	}
	if level >= 1 {
		return width
	}
	return int(level*float64(width) + 0.5)
}

func (t *Terminal) println(line string) {
	t.endLine()
	fmt.Fprintln(t.out, line)
}

func (t *Terminal) endLine() {
	if t.inLine {
		fmt.Fprintln(t.out)
		t.inLine = false
		t.messageID = ""
	}
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) SetConnected(bool)         {}
func (Nop) SetSpeaking(bool)          {}
func (Nop) AppendText(string, string) {}
func (Nop) StartVisualizer()          {}
func (Nop) StopVisualizer()           {}
func (Nop) SetLevel(float64)          {}
func (Nop) Notice(string)             {}
