package main

import (
	"log"
	"os"

	"github.com/pytutor/pytutor/internal/config"
	"github.com/pytutor/pytutor/internal/db"
	"github.com/pytutor/pytutor/internal/httpapi"
	"github.com/pytutor/pytutor/internal/store/rabbitmq"
	"github.com/pytutor/pytutor/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	r := httpapi.NewRouter(gdb, cfg, rds, pub)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("server listening addr=%s provider=%s", addr, cfg.AIProvider)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
