package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/Quanghau123/smarttasty-realtime/internal/hubsim"
	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	var (
		addr      = flag.String("addr", ":5000", "listen address")
		logLevel  = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "log format (text, json, pretty)")
	)
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  *logLevel,
		Format: *logFormat,
	})

	server := hubsim.NewServer(logger, hubsim.DefaultServerOptions())

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", server.Router())

	logger.Info("hub simulator listening", "addr", *addr)

	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Println(err)
	}
}
