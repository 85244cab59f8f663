package attach

import (
	"context"
	"errors"
	"testing"
	"time"

	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeDown struct {
	calls int
	data  []byte
	err   error
}

func (f *fakeDown) DownloadAttachment(context.Context, provider.AccountRef, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeBlob struct {
	calls int
	url   string
	err   error
	key   string
}

func (f *fakeBlob) Upload(_ context.Context, key string, _ []byte, _ string, _ map[string]string) (string, error) {
	f.calls++
	f.key = key
	return f.url, f.err
}

func (f *fakeBlob) Exists(context.Context, string) (bool, error) { return f.key != "", nil }

type fakeWrite struct {
	calls int
	err   error
}

func (f *fakeWrite) SetDurable(context.Context, primitive.ObjectID, string, string) error {
	f.calls++
	return f.err
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestResolveDurableWins(t *testing.T) {
	down := &fakeDown{}
	r := &Resolver{Down: down, Blob: &fakeBlob{}, Now: fixedNow}
	att := model.Attachment{
		StorageURL:  "https://blob/objects/a?token=x",
		ProviderURL: "https://provider/expired",
		// 已过期，但持久URL在就不该被看一眼
		ProviderURLExpiresAt: fixedNow().Add(-time.Hour),
	}
	res := r.Resolve(context.Background(), provider.AccountRef{}, att)
	if res.URL != att.StorageURL {
		t.Fatalf("want durable url, got %q", res.URL)
	}
	if down.calls != 0 {
		t.Error("durable hit must not touch provider")
	}
}

func TestResolveFreshProviderURL(t *testing.T) {
	down := &fakeDown{}
	r := &Resolver{Down: down, Blob: &fakeBlob{}, Now: fixedNow}
	att := model.Attachment{
		ProviderURL:          "https://provider/fresh",
		ProviderURLExpiresAt: fixedNow().Add(time.Hour),
	}
	res := r.Resolve(context.Background(), provider.AccountRef{}, att)
	if res.URL != att.ProviderURL {
		t.Fatalf("want provider url, got %q", res.URL)
	}
	if down.calls != 0 {
		t.Error("fresh provider url must not trigger download")
	}
}

func TestResolveExpiredProviderURLMigrates(t *testing.T) {
	down := &fakeDown{data: []byte("bytes")}
	blob := &fakeBlob{url: "https://blob/objects/k?token=y"}
	write := &fakeWrite{}
	r := &Resolver{Down: down, Blob: blob, Write: write, Now: fixedNow}
	att := model.Attachment{
		ID:                   primitive.NewObjectID(),
		AccountID:            primitive.NewObjectID(),
		MessageID:            primitive.NewObjectID(),
		ExternalID:           "att-1",
		Mime:                 "image/png",
		ProviderURL:          "https://provider/expired",
		ProviderURLExpiresAt: fixedNow().Add(-time.Minute),
	}
	res := r.Resolve(context.Background(), provider.AccountRef{}, att)
	if down.calls != 1 || blob.calls != 1 || write.calls != 1 {
		t.Fatalf("want one download/upload/writeback, got %d/%d/%d", down.calls, blob.calls, write.calls)
	}
	if res.URL != blob.url {
		t.Errorf("want migrated url %q, got %q", blob.url, res.URL)
	}
	if res.Attachment.StorageURL != blob.url || res.Attachment.StorageKey != blob.key {
		t.Error("migrated row must carry durable fields")
	}
}

func TestResolveRefreshFailureDegrades(t *testing.T) {
	down := &fakeDown{err: errors.New("provider down")}
	r := &Resolver{Down: down, Blob: &fakeBlob{}, Now: fixedNow}
	att := model.Attachment{
		ProviderURL:          "https://provider/stale",
		ProviderURLExpiresAt: fixedNow().Add(-time.Minute),
	}
	res := r.Resolve(context.Background(), provider.AccountRef{}, att)
	if res.URL != att.ProviderURL {
		t.Errorf("failed refresh must return known url, got %q", res.URL)
	}
	if res.Attachment.StorageURL != "" {
		t.Error("failed refresh must not fabricate durable fields")
	}
}

func TestResolveInlineFallback(t *testing.T) {
	r := &Resolver{Now: fixedNow}
	att := model.Attachment{InlineData: "aGVsbG8="}
	res := r.Resolve(context.Background(), provider.AccountRef{}, att)
	if !res.Inline || res.URL != "" {
		t.Errorf("inline-only attachment must resolve inline, got %+v", res)
	}
}

func TestResolveNothingAvailable(t *testing.T) {
	r := &Resolver{Now: fixedNow}
	res := r.Resolve(context.Background(), provider.AccountRef{}, model.Attachment{ExternalID: "x"})
	if res.URL != "" || res.Inline {
		t.Errorf("no source must resolve to nothing, got %+v", res)
	}
	if res.Attachment.ExternalID != "x" {
		t.Error("row must pass through unchanged")
	}
}
