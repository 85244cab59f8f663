package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"LinkProject/logger"
	"LinkProject/tools/errs"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
)

// API 编排器消费的 provider 能力面。所有分页调用都可能返回比请求少的条目，
// 所有调用都可能瞬时失败。
type API interface {
	ListChats(ctx context.Context, ref AccountRef, cursor string, limit int) (*ChatPage, error)
	ListMessages(ctx context.Context, ref AccountRef, chatID, cursor string, limit int) (*MessagePage, error)
	ListAttendees(ctx context.Context, ref AccountRef, chatID string) ([]AttendeeItem, error)
	GetProfile(ctx context.Context, ref AccountRef, personID string) (*Profile, error)
	SendMessage(ctx context.Context, ref AccountRef, chatID, body string, attachments []AttachmentItem) (*SendResult, error)
	PatchChat(ctx context.Context, ref AccountRef, chatID string, action PatchAction) (*PatchResult, error)
	DownloadAttachment(ctx context.Context, ref AccountRef, attachmentID string) ([]byte, error)
}

// Config provider 网关配置。
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	MaxPerSec int // 每账号每秒请求上限，0 = 不限
}

// Client resty 实现。无状态，可并发使用。
type Client struct {
	http *resty.Client
	cfg  Config
	rdb  *redis.Client // 每账号限速桶；nil 则不限速
}

func NewClient(cfg Config, rdb *redis.Client) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-Api-Key", cfg.APIKey)
	return &Client{http: http, cfg: cfg, rdb: rdb}
}

// throttle 每账号的秒级计数桶。超了就等到下一秒，受 ctx 约束。
// 多节点同时同步同一账号时共用同一个桶。
func (c *Client) throttle(ctx context.Context, ref AccountRef) error {
	if c.rdb == nil || c.cfg.MaxPerSec <= 0 {
		return nil
	}
	for {
		now := time.Now()
		key := fmt.Sprintf("provider:rl:%s:%d", ref.AccountExternalID, now.Unix())
		n, err := c.rdb.Incr(ctx, key).Result()
		if err != nil {
			// 限速器故障不阻塞同步，降级为不限速
			logger.Warnf("rate limiter unavailable: %v", err)
			return nil
		}
		if n == 1 {
			c.rdb.Expire(ctx, key, 2*time.Second)
		}
		if n <= int64(c.cfg.MaxPerSec) {
			return nil
		}
		wait := time.Until(now.Truncate(time.Second).Add(time.Second))
		select {
		case <-ctx.Done():
			return errs.Wrap(ctx.Err())
		case <-time.After(wait):
		}
	}
}

// do 发请求并统一映射错误。429 按 Retry-After 等待后重试一次。
func (c *Client) do(ctx context.Context, ref AccountRef, method, path string, body any, out any) error {
	if err := c.throttle(ctx, ref); err != nil {
		return err
	}

	retried := false
	for {
		req := c.http.R().
			SetContext(ctx).
			SetHeader("X-Account-Token", ref.Token)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return errs.ErrProviderTransient.WrapMsg("provider unreachable", "path", path, "err", err)
		}

		code := resp.StatusCode()
		switch {
		case code < 300:
			return nil
		case code == 401 || code == 403:
			return errs.ErrProviderAuth.WrapMsg("provider rejected credentials", "path", path, "status", code)
		case code == 404:
			return errs.ErrProviderGone.WrapMsg("provider resource gone", "path", path)
		case code == 429:
			if retried {
				return errs.ErrProviderTransient.WrapMsg("rate limited", "path", path)
			}
			retried = true
			wait := retryAfter(resp)
			logger.Debugf("provider 429 on %s, retrying in %s", path, wait)
			select {
			case <-ctx.Done():
				return errs.Wrap(ctx.Err())
			case <-time.After(wait):
			}
			continue
		case code >= 500:
			return errs.ErrProviderTransient.WrapMsg("provider server error", "path", path, "status", code)
		default:
			return errs.ErrProviderTransient.WrapMsg("unexpected provider status", "path", path, "status", code)
		}
	}
}

func retryAfter(resp *resty.Response) time.Duration {
	if s := resp.Header().Get("Retry-After"); s != "" {
		if sec, err := strconv.Atoi(s); err == nil && sec > 0 && sec <= 60 {
			return time.Duration(sec) * time.Second
		}
	}
	return 2 * time.Second
}

func (c *Client) ListChats(ctx context.Context, ref AccountRef, cursor string, limit int) (*ChatPage, error) {
	var page ChatPage
	path := fmt.Sprintf("/api/v1/accounts/%s/chats?limit=%d&cursor=%s", ref.AccountExternalID, limit, cursor)
	if err := c.do(ctx, ref, "GET", path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ListMessages(ctx context.Context, ref AccountRef, chatID, cursor string, limit int) (*MessagePage, error) {
	var page MessagePage
	path := fmt.Sprintf("/api/v1/chats/%s/messages?limit=%d&cursor=%s", chatID, limit, cursor)
	if err := c.do(ctx, ref, "GET", path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ListAttendees(ctx context.Context, ref AccountRef, chatID string) ([]AttendeeItem, error) {
	var out struct {
		Items []AttendeeItem `json:"items"`
	}
	path := fmt.Sprintf("/api/v1/chats/%s/attendees", chatID)
	if err := c.do(ctx, ref, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetProfile(ctx context.Context, ref AccountRef, personID string) (*Profile, error) {
	var p Profile
	path := fmt.Sprintf("/api/v1/people/%s", personID)
	if err := c.do(ctx, ref, "GET", path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SendMessage(ctx context.Context, ref AccountRef, chatID, body string, attachments []AttachmentItem) (*SendResult, error) {
	var res SendResult
	payload := map[string]any{"body": body}
	if len(attachments) > 0 {
		payload["attachments"] = attachments
	}
	path := fmt.Sprintf("/api/v1/chats/%s/messages", chatID)
	if err := c.do(ctx, ref, "POST", path, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) PatchChat(ctx context.Context, ref AccountRef, chatID string, action PatchAction) (*PatchResult, error) {
	var res PatchResult
	path := fmt.Sprintf("/api/v1/chats/%s", chatID)
	if err := c.do(ctx, ref, "PATCH", path, map[string]any{"action": action}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DownloadAttachment(ctx context.Context, ref AccountRef, attachmentID string) ([]byte, error) {
	if err := c.throttle(ctx, ref); err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/v1/attachments/%s/content", attachmentID)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Account-Token", ref.Token).
		Get(path)
	if err != nil {
		return nil, errs.ErrProviderTransient.WrapMsg("download failed", "attachment", attachmentID, "err", err)
	}
	switch code := resp.StatusCode(); {
	case code < 300:
		return resp.Body(), nil
	case code == 401 || code == 403:
		return nil, errs.ErrProviderAuth.WrapMsg("download unauthorized", "attachment", attachmentID)
	case code == 404:
		return nil, errs.ErrProviderGone.WrapMsg("attachment gone", "attachment", attachmentID)
	default:
		return nil, errs.ErrProviderTransient.WrapMsg("download failed", "attachment", attachmentID, "status", code)
	}
}
