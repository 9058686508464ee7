package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"lingzhi-client/log"
)

// controller 交互界面需要的会话操作
type controller interface {
	StartAudioMode() error
	StopAudioMode() error
	SendText(text string) error
	Close() error
}

const helpText = `命令:
  /mic   开启语音模式
  /stop  关闭语音模式
  /quit  结束会话
  其他输入作为文本发送给智能体`

// runREPL 逐行读取输入，直到 /quit、输入结束或ctx取消
func runREPL(ctx context.Context, in io.Reader, out io.Writer, sess controller) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprintln(out, helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			_ = sess.Close()
			return err
		case line := <-lines:
			if quit := handleLine(strings.TrimSpace(line), out, sess); quit {
				return nil
			}
		}
	}
}

func handleLine(line string, out io.Writer, sess controller) bool {
	var err error
	switch line {
	case "":
		return false
	case "/quit", "/q":
		if err := sess.Close(); err != nil {
			log.Warnf("关闭会话失败: %v", err)
		}
		fmt.Fprintln(out, "再见")
		return true
	case "/help":
		fmt.Fprintln(out, helpText)
		return false
	case "/mic":
		// 失败的提示已经由展示层输出
		err = sess.StartAudioMode()
	case "/stop":
		err = sess.StopAudioMode()
	default:
		err = sess.SendText(line)
	}
	if err != nil {
		log.Warnf("执行 %q 失败: %v", line, err)
	}
	return false
}
