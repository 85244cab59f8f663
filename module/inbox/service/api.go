package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"LinkProject/logger"
	"LinkProject/module/inbox/attach"
	"LinkProject/module/inbox/limit"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	syncer "LinkProject/module/inbox/sync"
	"LinkProject/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 调用方身份从网关注入的头里取。鉴权网关在这层之外。
const (
	HeaderUserID        = "X-User-Id"
	HeaderWebhookSecret = "X-Webhook-Secret"
)

// API 服务面。读路径全部过限额引擎，变更路径全部过 Sender 的前置校验。
type API struct {
	Store    *store.Store
	Limit    *limit.Engine
	Sender   *syncer.Sender
	Orch     *syncer.Orchestrator
	Resolver *attach.Resolver

	WebhookSecret string
	// Enqueue webhook 原始事件进队（kafka.SendSync 适配）。key 为账号ID，
	// 同一账号的事件落同一分区保序。
	Enqueue func(key string, raw []byte) error
}

// HeaderRequestID 链路追踪用请求ID，没带就补一个。
const HeaderRequestID = "X-Request-Id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.POST("/webhook/provider", a.handleWebhook)
	r.POST("/accounts/:id/sync", a.handleTriggerSync)
	r.GET("/limits", a.handleLimitStatus)
	r.GET("/chats", a.handleListChats)
	r.GET("/chats/:id/messages", a.handleListMessages)
	r.POST("/chats/:id/messages", a.handleSendMessage)
	r.POST("/chats/:id/read", a.handleMarkRead)
	return r
}

// httpStatusOf 稳定错误码 → HTTP 状态。
func httpStatusOf(code int) int {
	switch code {
	case errs.ArgsError:
		return http.StatusBadRequest
	case errs.RecordNotFoundError:
		return http.StatusNotFound
	case errs.NoPermissionError, errs.ContactLimitError, errs.ChatReadOnlyError:
		return http.StatusForbidden
	case errs.ProviderAuthError, errs.ProviderGoneError, errs.SendRejectedError:
		return http.StatusBadGateway
	case errs.ProviderTransientError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortErr(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	msg := "internal error"
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	if code == errs.ServerInternalError {
		logger.Errorf("request %s failed: %+v", c.FullPath(), err)
	}
	c.AbortWithStatusJSON(httpStatusOf(code), gin.H{"code": code, "msg": msg})
}

func callerID(c *gin.Context) (string, bool) {
	uid := c.GetHeader(HeaderUserID)
	if uid == "" {
		abortErr(c, errs.ErrNoPermission.WrapMsg("missing user identity"))
		return "", false
	}
	return uid, true
}

func pathObjectID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortErr(c, errs.ErrArgs.WrapMsg("bad id"))
		return primitive.NilObjectID, false
	}
	return id, true
}

// handleWebhook provider 推送入口：验共享密钥，原样进队，由 kafka 消费侧
// 解码与应用。这里不做任何业务处理，进队即 202。
func (a *API) handleWebhook(c *gin.Context) {
	if a.WebhookSecret == "" || c.GetHeader(HeaderWebhookSecret) != a.WebhookSecret {
		abortErr(c, errs.ErrNoPermission.WrapMsg("bad webhook secret"))
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		abortErr(c, errs.ErrArgs.WrapMsg("empty webhook body"))
		return
	}
	var env syncer.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		abortErr(c, errs.ErrArgs.WrapMsg("bad webhook envelope"))
		return
	}
	if err := a.Enqueue(env.AccountID, raw); err != nil {
		abortErr(c, errs.ErrInternal.WrapMsg("enqueue failed", "err", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// handleTriggerSync 触发历史同步。同步本身异步跑，立即返回 202。
func (a *API) handleTriggerSync(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	accountID, ok := pathObjectID(c)
	if !ok {
		return
	}
	acct, err := a.Store.Accounts.FindByID(c.Request.Context(), accountID, model.VisibleActive)
	if err != nil {
		abortErr(c, err)
		return
	}
	if acct.OwnerUserID != uid {
		abortErr(c, errs.ErrNoPermission.WrapMsg("account not owned by caller"))
		return
	}
	go func() {
		// 请求结束不取消同步
		if err := a.Orch.RunHistorical(context.Background(), accountID); err != nil {
			logger.Warnf("historical sync for %s failed: %v", accountID.Hex(), err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"account_id": accountID.Hex(), "status": model.AccountStatusSyncing})
}

func (a *API) handleLimitStatus(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	st, err := a.Limit.Status(c.Request.Context(), uid)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleListChats 会话列表。结果集先过限额引擎再出门。
func (a *API) handleListChats(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	page, err := a.Store.Chats.ListByOwner(ctx, uid, model.VisibleActive, c.Query("cursor"), queryInt(c, "limit", 20))
	if err != nil {
		abortErr(c, err)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(page.Items))
	for _, chat := range page.Items {
		ids = append(ids, chat.ID)
	}
	attendees, err := a.Store.Attendees.ListByChats(ctx, ids)
	if err != nil {
		abortErr(c, err)
		return
	}
	st, err := a.Limit.Status(ctx, uid)
	if err != nil {
		abortErr(c, err)
		return
	}
	views := limit.ObfuscateChats(page.Items, attendees, st)
	c.JSON(http.StatusOK, gin.H{
		"items":       views,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
		"limit":       st,
	})
}

type messageView struct {
	model.Message
	Attachments []attachmentView `json:"attachments,omitempty"`
}

type attachmentView struct {
	model.Attachment
	URL    string `json:"url,omitempty"`
	Inline bool   `json:"inline,omitempty"`
}

// handleListMessages 消息列表。被遮蔽的会话不还原内容，正文换成引导文案。
func (a *API) handleListMessages(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	chat, err := a.Store.Chats.FindByID(ctx, chatID, model.VisibleActive)
	if err != nil {
		abortErr(c, err)
		return
	}
	if chat.OwnerUserID != uid {
		abortErr(c, errs.ErrNoPermission.WrapMsg("chat not owned by caller"))
		return
	}

	page, err := a.Store.Messages.ListByChat(ctx, chat.ID, c.Query("cursor"), queryInt(c, "limit", 50))
	if err != nil {
		abortErr(c, err)
		return
	}

	obfuscated, err := a.Limit.IsChatObfuscated(ctx, uid, chat.ID)
	if err != nil {
		abortErr(c, err)
		return
	}
	if obfuscated {
		c.JSON(http.StatusOK, gin.H{
			"items":       limit.ObfuscateMessages(page.Items),
			"next_cursor": page.NextCursor,
			"has_more":    page.HasMore,
			"obfuscated":  true,
		})
		return
	}

	acct, err := a.Store.Accounts.FindByID(ctx, chat.AccountID, model.VisibleAny)
	if err != nil {
		abortErr(c, err)
		return
	}
	ref := provider.AccountRef{AccountExternalID: acct.ExternalID, Token: acct.Token}
	items := make([]messageView, 0, len(page.Items))
	for _, m := range page.Items {
		mv := messageView{Message: m}
		atts, err := a.Store.Attachments.ListByMessage(ctx, m.ID)
		if err != nil {
			logger.Debugf("list attachments of %s failed: %v", m.ExternalID, err)
		}
		for _, att := range atts {
			res := a.Resolver.Resolve(ctx, ref, att)
			mv.Attachments = append(mv.Attachments, attachmentView{
				Attachment: res.Attachment,
				URL:        res.URL,
				Inline:     res.Inline,
			})
		}
		items = append(items, mv)
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}

type sendMessageReq struct {
	Body        string                    `json:"body"`
	Attachments []provider.AttachmentItem `json:"attachments,omitempty"`
}

func (a *API) handleSendMessage(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c)
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errs.ErrArgs.WrapMsg("bad request body"))
		return
	}
	msg, err := a.Sender.SendMessage(c.Request.Context(), uid, chatID, req.Body, req.Attachments)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (a *API) handleMarkRead(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chatID, ok := pathObjectID(c)
	if !ok {
		return
	}
	if err := a.Sender.MarkChatRead(c.Request.Context(), uid, chatID); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
