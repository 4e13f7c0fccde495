package connector

import (
	"crypto/tls"
	"net/url"
)

// TLSProvider 为 wss 连接提供 TLS 配置，返回 nil 表示不处理该地址。
type TLSProvider interface {
	TLSConfig(u *url.URL) *tls.Config
}

// TLSProviderFunc 将函数适配为 TLSProvider。
type TLSProviderFunc func(u *url.URL) *tls.Config

func (f TLSProviderFunc) TLSConfig(u *url.URL) *tls.Config {
	return f(u)
}

// ResolveTLS 按顺序询问 providers，取第一个非 nil 结果；都不提供时使用系统默认配置。
func ResolveTLS(providers []TLSProvider, u *url.URL) *tls.Config {
	for _, p := range providers {
		if p == nil {
			continue
		}
		if cfg := p.TLSConfig(u); cfg != nil {
			return cfg
		}
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
