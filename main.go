package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"LinkProject/config"
	"LinkProject/logger"
	"LinkProject/module/inbox/attach"
	"LinkProject/module/inbox/blob"
	"LinkProject/module/inbox/limit"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/service"
	"LinkProject/module/inbox/store"
	syncer "LinkProject/module/inbox/sync"
	"LinkProject/service/kafka"
	"LinkProject/service/mgo"
	"LinkProject/service/natsx"
	redisx "LinkProject/service/storage/redis"
	"LinkProject/tools/ids"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := config.Profile(os.Getenv("APP_ENV"))
	if err := cfg.Validate(); err != nil {
		logger.Errorf("invalid sync config: %v", err)
		os.Exit(1)
	}
	if cfg.Flags.EnableDetailedLogging {
		logger.EnableDebug()
	}
	ids.SetNodeID(1)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Mongo：异步起，起不来就不开门
	mgo.StartAsync(ctx, &mgo.Config{
		Uri:         env("MONGO_URI", "mongodb://127.0.0.1:27017"),
		Database:    env("MONGO_DB", "link_inbox"),
		Username:    os.Getenv("MONGO_USER"),
		Password:    os.Getenv("MONGO_PASS"),
		MaxPoolSize: 100,
	})
	if err := mgo.WaitReady(ctx); err != nil {
		logger.Errorf("mongo not ready: %v", err)
		os.Exit(1)
	}
	st := store.New(mgo.GetDB())

	if err := redisx.InitRedis(redisx.Config{
		Addr:     env("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASS"),
		PoolSize: 50,
	}); err != nil {
		logger.Errorf("redis init failed: %v", err)
		os.Exit(1)
	}
	defer redisx.CloseRedis()
	rdb := redisx.GetRedis()

	providerCli := provider.NewClient(provider.Config{
		BaseURL:   env("PROVIDER_BASE_URL", "https://provider.local"),
		APIKey:    os.Getenv("PROVIDER_API_KEY"),
		MaxPerSec: 4,
	}, rdb)

	blobStore := blob.NewGatewayStore(blob.Config{
		BaseURL: env("BLOB_BASE_URL", "https://blob.local"),
		APIKey:  os.Getenv("BLOB_API_KEY"),
		SignKey: env("BLOB_SIGN_KEY", "dev-sign-key"),
	})
	resolver := &attach.Resolver{Down: providerCli, Blob: blobStore, Write: st.Attachments}

	// NATS 广播尽力而为，连不上只降级不拦启动
	var notify syncer.Notifier
	if nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: strings.Split(env("NATS_SERVERS", "nats://127.0.0.1:4222"), ","),
		Name:    "inbox-sync",
	}); err != nil {
		logger.Warnf("nats unavailable, sync broadcasts disabled: %v", err)
	} else {
		defer nc.Close()
		notify = natsx.NewNatsxProducer(nc)
	}

	orch, err := syncer.NewOrchestrator(cfg, providerCli, syncer.StoresFrom(st), notify)
	if err != nil {
		logger.Errorf("orchestrator init failed: %v", err)
		os.Exit(1)
	}
	eng := &limit.Engine{
		Accounts:  st.Accounts,
		Messages:  st.Messages,
		Views:     st.ProfileViews,
		Plans:     st.Subscriptions,
		Chats:     st.Chats,
		Attendees: st.Attendees,
	}
	sender := syncer.NewSender(providerCli, syncer.StoresFrom(st), eng)
	applier := syncer.NewEventApplier(orch, natsx.NewRedisIdem(rdb, 24*time.Hour))

	// webhook 事件：gin 入口进 kafka，消费组按账号分区顺序应用
	if err := kafka.InitKafkaClient(); err != nil {
		logger.Errorf("kafka init failed: %v", err)
		os.Exit(1)
	}
	if err := kafka.InitSyncProducerFromClient(); err != nil {
		logger.Errorf("kafka producer init failed: %v", err)
		os.Exit(1)
	}
	kafka.RegisterHandler(kafka.Cfg.WebhookTopic, func(_ string, _, value []byte) error {
		return applier.Apply(ctx, value)
	})
	go func() {
		if err := kafka.StartConsumerGroup(ctx, kafka.Cfg.Brokers, kafka.Cfg.GroupID, []string{kafka.Cfg.WebhookTopic}); err != nil {
			logger.Errorf("consumer group stopped: %v", err)
		}
	}()

	api := &service.API{
		Store:         st,
		Limit:         eng,
		Sender:        sender,
		Orch:          orch,
		Resolver:      resolver,
		WebhookSecret: env("WEBHOOK_SECRET", "dev-webhook-secret"),
		Enqueue: func(key string, raw []byte) error {
			return kafka.SendSync(kafka.Cfg.WebhookTopic, key, raw)
		},
	}
	srv := &http.Server{Addr: env("LISTEN_ADDR", ":8080"), Handler: api.Router()}
	go func() {
		logger.Infof("inbox sync service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	logger.Info("inbox sync service stopped")
}
