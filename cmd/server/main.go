// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/analytics"
	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/database"
	"github.com/pitchside/pitchside/internal/handlers"
	"github.com/pitchside/pitchside/internal/matchmaking"
	"github.com/pitchside/pitchside/internal/middleware"
	"github.com/pitchside/pitchside/internal/room"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.FromEnv()

	// Postgres and Redis are optional collaborators: without them the
	// engine still runs, purely in memory.
	dbUp := false
	if err := database.Connect(); err != nil {
		logger.Warnf("running without postgres: %v", err)
	} else {
		dbUp = true
		defer database.DB.Close()
	}

	gateway := broadcast.NewGateway(logger)
	rooms := room.NewService(cfg, room.NewStore(), gateway, logger)
	if dbUp {
		rooms.Ratings = database.Results{}
	}

	if sink, err := analytics.Connect(logger); err != nil {
		logger.Warnf("running without analytics: %v", err)
	} else {
		rooms.Recorder = sink
		defer sink.Close()
	}

	matches := matchmaking.NewService(cfg, gateway, rooms, logger)

	rooms.Start()
	defer rooms.Stop()
	matches.Start()
	defer matches.Stop()

	srv := handlers.NewServer(logger, gateway, rooms, matches)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))
	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(srv),
	)))

	addr := config.ListenAddr()
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
