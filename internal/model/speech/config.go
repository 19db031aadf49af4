package speech

import (
	"cmp"
	"errors"
	"strings"
)

// ASRConfig 语音识别服务配置
type ASRConfig struct {
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	Endpoint       string `json:"endpoint"`         // WebSocket 地址，留空使用默认
	ConcurrentMode bool   `json:"concurrentMode"`   // 并发版资源（false 为小时版）
	Model          string `json:"model"`
	Language       string `json:"language"`
	SampleRate     int    `json:"sampleRate"`
	Timeout        int    `json:"timeout"` // seconds
}

// Credentials returns the trimmed app id and access token. AccessToken wins
// over the legacy APIKey.
func (c *ASRConfig) Credentials() (appID, token string, err error) {
	if c == nil {
		return "", "", errors.New("asr config is nil")
	}
	appID = strings.TrimSpace(c.AppID)
	token = cmp.Or(strings.TrimSpace(c.AccessToken), strings.TrimSpace(c.APIKey))
	if appID == "" || token == "" {
		return "", "", errors.New("asr config requires app id and access token")
	}
	return appID, token, nil
}
