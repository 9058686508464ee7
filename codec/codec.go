// Package codec 负责客户端与智能体之间JSON消息的编解码，无状态。
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"lingzhi-client/model"
)

// DecodeError 表示收到的消息无法解析
type DecodeError struct {
	Raw string // 原始文本，仅用于诊断
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("消息解析失败: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Cause 兼容 github.com/pkg/errors
func (e *DecodeError) Cause() error { return e.Err }

// EncodeAudio 将原始PCM字节包装为音频消息
func EncodeAudio(pcm []byte) model.Envelope {
	return model.Envelope{
		MimeType: model.MimeTypePCM,
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}
}

// EncodeText 将文本包装为文本消息
func EncodeText(text string) model.Envelope {
	return model.Envelope{
		MimeType: model.MimeTypeText,
		Data:     text,
	}
}

// Marshal 序列化为线上传输的JSON
func Marshal(env model.Envelope) ([]byte, error) {
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, errors.Wrap(err, "JSON编码错误")
	}
	return data, nil
}

// Decode 解析收到的原始文本
// 参数:
//   - raw: 连接上收到的一条文本消息
//
// 返回:
//   - model.Envelope: 解析结果
//   - error: 解析失败时为 *DecodeError
func Decode(raw []byte) (model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Envelope{}, &DecodeError{Raw: string(raw), Err: err}
	}
	return env, nil
}

// AudioData 取出音频消息中的PCM字节
func AudioData(env model.Envelope) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errors.Wrap(err, "base64解码失败")
	}
	return data, nil
}
