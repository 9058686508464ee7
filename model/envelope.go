package model

const (
	// MimeTypePCM 原始PCM音频，data为base64
	MimeTypePCM = "audio/pcm"
	// MimeTypeText 纯文本，data为UTF-8原文
	MimeTypeText = "text/plain"
)

// Envelope 连接上双向传输的JSON消息
//
// 消费方必须先检查 Interrupted 和 TurnComplete，再看 Data。
type Envelope struct {
	MimeType     string `json:"mime_type,omitempty"`
	Data         string `json:"data,omitempty"`
	TurnComplete bool   `json:"turn_complete,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"`
}

// IsAudio 是否携带音频数据
func (e Envelope) IsAudio() bool {
	return e.MimeType == MimeTypePCM && e.Data != ""
}

// IsText 是否携带文本数据
func (e Envelope) IsText() bool {
	return e.MimeType == MimeTypeText && e.Data != ""
}
