package attach

import (
	"context"
	"fmt"
	"time"

	"LinkProject/logger"
	"LinkProject/module/inbox/blob"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Downloader provider 侧的附件拉取能力（provider.API 的子集）。
type Downloader interface {
	DownloadAttachment(ctx context.Context, ref provider.AccountRef, attachmentID string) ([]byte, error)
}

// Writeback 懒迁移成功后的持久URL写回（store.AttachmentDAO 实现）。
type Writeback interface {
	SetDurable(ctx context.Context, id primitive.ObjectID, key, url string) error
}

// Result 解析结果：附件行 + 当前最优访问地址。
// URL 为空且 Inline 为 true 时走内联内容。
type Result struct {
	Attachment model.Attachment
	URL        string
	Inline     bool
}

// Resolver 按固定顺序解析附件来源：持久URL → provider URL → 内联内容。
// 解析失败从不向读路径抛错，退回已知信息。幂等，可对同一行反复调用，
// 除一次性迁移外没有副作用。
type Resolver struct {
	Down  Downloader
	Blob  blob.Store
	Write Writeback
	Now   func() time.Time // 测试注入；nil 用 time.Now
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

type step func(ctx context.Context, ref provider.AccountRef, att model.Attachment) (*Result, bool)

// 顺序本身是被测试的对象：持久URL一经存在永远直接命中，不回访 provider。
func (r *Resolver) steps() []step {
	return []step{r.fromDurable, r.fromProvider, r.fromInline}
}

// Resolve 取附件的最优访问地址。
func (r *Resolver) Resolve(ctx context.Context, ref provider.AccountRef, att model.Attachment) Result {
	for _, s := range r.steps() {
		if res, ok := s(ctx, ref, att); ok {
			return *res
		}
	}
	// 没有任何可取来源，原样返回
	return Result{Attachment: att}
}

func (r *Resolver) fromDurable(_ context.Context, _ provider.AccountRef, att model.Attachment) (*Result, bool) {
	if att.StorageURL == "" {
		return nil, false
	}
	return &Result{Attachment: att, URL: att.StorageURL}, true
}

// fromProvider 未过期直接用；过期不吐陈旧链接，回 provider 重取字节并
// 顺手做一次性迁移。迁移失败只降级，不影响读路径。
func (r *Resolver) fromProvider(ctx context.Context, ref provider.AccountRef, att model.Attachment) (*Result, bool) {
	if att.ProviderURL == "" {
		return nil, false
	}
	expired := !att.ProviderURLExpiresAt.IsZero() && att.ProviderURLExpiresAt.Before(r.now())
	if !expired {
		return &Result{Attachment: att, URL: att.ProviderURL}, true
	}

	migrated, ok := r.migrate(ctx, ref, att)
	if !ok {
		// 刷新失败：退回已知（陈旧）信息，原样返回
		return &Result{Attachment: att, URL: att.ProviderURL}, true
	}
	return &Result{Attachment: *migrated, URL: migrated.StorageURL}, true
}

func (r *Resolver) fromInline(_ context.Context, _ provider.AccountRef, att model.Attachment) (*Result, bool) {
	if att.InlineData == "" {
		return nil, false
	}
	return &Result{Attachment: att, Inline: true}, true
}

// migrate 一次性懒迁移：provider 拉字节 → 上传对象存储 → 写回持久URL。
// 并发调用撞在同一行时由写回层保证首写生效。
func (r *Resolver) migrate(ctx context.Context, ref provider.AccountRef, att model.Attachment) (*model.Attachment, bool) {
	if r.Down == nil || r.Blob == nil {
		return nil, false
	}
	data, err := r.Down.DownloadAttachment(ctx, ref, att.ExternalID)
	if err != nil {
		logger.Debugf("attachment refresh failed id=%s: %v", att.ExternalID, err)
		return nil, false
	}
	key := ids.BlobKey(att.AccountID.Hex(), att.MessageID.Hex(), att.ExternalID)
	mime := att.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	url, err := r.Blob.Upload(ctx, key, data, mime, map[string]string{
		"filename": att.Filename,
		"size":     fmt.Sprintf("%d", len(data)),
	})
	if err != nil {
		logger.Debugf("attachment upload failed key=%s: %v", key, err)
		return nil, false
	}
	if r.Write != nil {
		if err := r.Write.SetDurable(ctx, att.ID, key, url); err != nil {
			logger.Debugf("durable writeback failed key=%s: %v", key, err)
			// 写回失败不影响本次返回
		}
	}
	att.StorageKey = key
	att.StorageURL = url
	att.UploadedAt = r.now()
	return &att, true
}
