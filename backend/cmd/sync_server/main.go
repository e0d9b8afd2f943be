package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Session struct {
		RingCap          int    `mapstructure:"ringCap"`
		SnapshotEveryOps uint64 `mapstructure:"snapshotEveryOps"`
		IdleEvictSeconds int    `mapstructure:"idleEvictSeconds"`
	} `mapstructure:"session"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.Mysql.DSN+"?parseTime=true")
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN + "?parseTime=true")
	if err != nil {
		log.Fatalf("Failed to init gorm: %v", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	// Kafka 在途发送和 op 提交的并发上限分开限：
	// 前者护的是 broker 连接，后者护的是提交临界区的排队深度
	kafkaSem := collab.NewSemaphoreControl(64)
	wsSem := collab.NewSemaphoreControl(256)

	// Kafka 本地队列 + worker 重试发送
	dispatcher := collab.NewEventDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.EventDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	logStore := store.NewMySQLStore(db)
	docStore := store.NewDocumentStore(gormDB)

	registry := collab.NewRegistry(logStore, dispatcher, collab.Options{
		RingCap:       cfg.Session.RingCap,
		SnapshotEvery: cfg.Session.SnapshotEveryOps,
		IdleTimeout:   time.Duration(cfg.Session.IdleEvictSeconds) * time.Second,
	})
	registry.StartSweeper(context.Background())

	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)
	manager := ws.NewManager(hub, registry, wsSem)
	docHandler := handlers.NewDocumentHandler(registry, docStore)

	// 启动时确保 demo 文档存在，方便直接连上试
	if _, err := registry.Ensure(context.Background(), "demo", "Hello, collaborative world!"); err != nil {
		log.Printf("ensure demo document: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.POST("/documents", docHandler.CreateDocument)
	r.GET("/documents", docHandler.ListDocuments)
	r.GET("/health", docHandler.Health)

	sync := r.Group("/sync")
	sync.GET("/ws", manager.WebSocketConnect)

	port := cfg.Running.Port
	log.Printf("sync server listening on :%d", port)
	_ = r.Run(fmt.Sprintf(":%d", port))
}
