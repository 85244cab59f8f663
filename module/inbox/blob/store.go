package blob

import (
	"context"
	"fmt"
	"time"

	"LinkProject/tools/errs"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Store 对象存储能力面：上传、存在性检查。无状态。
type Store interface {
	Upload(ctx context.Context, key string, data []byte, mime string, meta map[string]string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Signer 下载链接签发。对象本身不公开，读取走带 jwt 的签名链接。
type Signer struct {
	secret  []byte
	baseURL string
}

func NewSigner(secret []byte, baseURL string) *Signer {
	return &Signer{secret: secret, baseURL: baseURL}
}

// SignedURL 给对象 key 签一个限时下载链接。
func (s *Signer) SignedURL(key string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errs.WrapMsg(err, "sign blob url", "key", key)
	}
	return fmt.Sprintf("%s/objects/%s?token=%s", s.baseURL, key, signed), nil
}

// Config 存储网关配置。
type Config struct {
	BaseURL string
	APIKey  string
	SignKey string
	URLTTL  time.Duration // 签名链接有效期
	Timeout time.Duration
}

// GatewayStore 经存储网关的实现。
type GatewayStore struct {
	http   *resty.Client
	signer *Signer
	urlTTL time.Duration
}

func NewGatewayStore(cfg Config) *GatewayStore {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.URLTTL == 0 {
		cfg.URLTTL = 7 * 24 * time.Hour
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-Api-Key", cfg.APIKey)
	return &GatewayStore{
		http:   http,
		signer: NewSigner([]byte(cfg.SignKey), cfg.BaseURL),
		urlTTL: cfg.URLTTL,
	}
}

// Upload 上传后返回签名下载链接。同 key 重复上传是覆盖写，调用方
// 用确定性 key 保证幂等。
func (g *GatewayStore) Upload(ctx context.Context, key string, data []byte, mime string, meta map[string]string) (string, error) {
	req := g.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", mime).
		SetBody(data)
	for k, v := range meta {
		req.SetHeader("X-Meta-"+k, v)
	}
	resp, err := req.Put("/objects/" + key)
	if err != nil {
		return "", errs.WrapMsg(err, "blob upload", "key", key)
	}
	if resp.StatusCode() >= 300 {
		return "", errs.ErrInternal.WrapMsg("blob upload failed", "key", key, "status", resp.StatusCode())
	}
	return g.signer.SignedURL(key, g.urlTTL)
}

func (g *GatewayStore) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := g.http.R().SetContext(ctx).Head("/objects/" + key)
	if err != nil {
		return false, errs.WrapMsg(err, "blob head", "key", key)
	}
	switch {
	case resp.StatusCode() == 404:
		return false, nil
	case resp.StatusCode() < 300:
		return true, nil
	default:
		return false, errs.ErrInternal.WrapMsg("blob head failed", "key", key, "status", resp.StatusCode())
	}
}
