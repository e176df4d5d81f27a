package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Quanghau123/smarttasty-realtime/internal/config"
	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	"github.com/Quanghau123/smarttasty-realtime/pkg/realtime"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to config file (json or yaml)")
		hubURL       = flag.String("hub", "", "hub URL (overrides config)")
		token        = flag.String("token", "", "access token (overrides config)")
		userID       = flag.String("user", "", "authenticated user id (overrides config)")
		restaurantID = flag.Int("restaurant", 0, "restaurant id to watch; 0 watches the personal room")
	)
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *hubURL != "" {
		cfg.Hub.URL = *hubURL
	}
	if *token != "" {
		cfg.Hub.AccessToken = *token
	}
	if *userID != "" {
		cfg.Hub.UserID = *userID
	}

	logger := logging.New(cfg.Logging)

	client := realtime.NewClient(realtime.Options{
		URL:               cfg.Hub.URL,
		AccessToken:       cfg.Hub.AccessToken,
		UserID:            cfg.Hub.UserID,
		Logger:            logger,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		BufferCapacity:    cfg.Hub.BufferCapacity,
	})

	var room string
	if *restaurantID > 0 {
		room = hub.RestaurantRoom(*restaurantID)
	}

	consumer := realtime.NewConsumer(client, realtime.ConsumerOptions{
		RoomID:  room,
		Enabled: true,
		OnRatingUpdate: func(update hub.RatingUpdate) {
			fmt.Printf("rating update: restaurant=%d average=%.2f reviews=%d\n",
				update.RestaurantID, update.AverageRating, update.TotalReviews)
		},
		OnNotification: func(n hub.Notification) {
			fmt.Printf("notification: %s - %s\n", n.Title, n.Message)
		},
	})

	ctx := context.Background()

	if err := consumer.Activate(ctx); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer consumer.Disconnect()

	logger.Info("listening for realtime events",
		"connection_id", consumer.ConnectionID(),
		"hub", cfg.Hub.URL,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
}
