// Package audio 定义设备采集和播放的窄接口，以及可视化用的音量计算。
// 音频统一为PCM16小端单声道，对会话核心来说是不透明的字节。
package audio

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrUnavailable 当前构建没有可用的音频设备
var ErrUnavailable = errors.New("音频设备不可用")

// Capturer 麦克风采集
type Capturer interface {
	// StartCapture 开始采集，onFrame在采集协程中被调用，切片之后可能被复用
	StartCapture(onFrame func([]byte)) (CaptureContext, error)
}

// CaptureContext 一次采集会话
type CaptureContext interface {
	Stop()
}

// Player 扬声器播放
type Player interface {
	StartPlayback() (PlaybackContext, error)
}

// PlaybackContext 一次播放会话
type PlaybackContext interface {
	// Enqueue 追加一段待播放的音频
	Enqueue(data []byte)
	// EndOfAudio 丢弃所有尚未播放的音频
	EndOfAudio()
	Close()
}

// 语音的平均幅度大约在这个量级，用来归一化
const levelScale = 10000.0

// Level 计算PCM16小端音频的归一化能量（0到1），用于音量可视化
func Level(pcm []byte) float64 {
	samples := BytesToInt16(pcm)
	if len(samples) == 0 {
		return 0
	}

	var sum int64
	for _, s := range samples {
		if s < 0 {
			sum -= int64(s)
		} else {
			sum += int64(s)
		}
	}

	level := float64(sum) / float64(len(samples)) / levelScale
	if level > 1 {
		level = 1
	}
	return level
}

// BytesToInt16 将小端字节切片转换为int16采样，末尾不足两字节的部分被忽略
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// PadFrame 返回长度为size的帧，tail不足的部分补零（静音），超出的部分被截断
func PadFrame(tail []byte, size int) []byte {
	frame := make([]byte, size)
	copy(frame, tail)
	return frame
}

// Int16ToBytes 将int16采样转换为小端字节切片
func Int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
