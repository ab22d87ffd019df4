package config

import (
	"context"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var (
	Ctx   = context.Background()
	Redis *redis.Client
)

func InitRedis() {
	db, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil {
		db = 0
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
		Password: GetEnv("REDIS_PASSWORD", ""),
		DB:       db,
	})

	if err := Redis.Ping(Ctx).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	log.Println("Redis connected (DB", db, ")")
}
