package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sealchat/internal/domain"
	"sealchat/internal/feed/redisfeed"
	"sealchat/internal/store/memory"
	"sealchat/internal/store/postgres"
)

type stores interface {
	domain.KeyDirectory
	domain.ConversationStore
	domain.MessageStore
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	postgresDSN := flag.String("postgres", "", "postgres DSN (default: in-memory store)")
	redisAddr := flag.String("redis", "", "redis address for the change feed (default: no feed)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("component", "feedrelay").Logger()

	var db stores
	if *postgresDSN != "" {
		pg, err := postgres.Open(*postgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer pg.Close()
		if err := pg.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		db = pg
		log.Info().Msg("using postgres store")
	} else {
		db = memory.New()
		log.Info().Msg("using in-memory store")
	}

	var publisher domain.FeedPublisher
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		publisher = redisfeed.New(rdb, db, log)
		log.Info().Str("redis", *redisAddr).Msg("change feed enabled")
	}

	srv := &server{db: db, publisher: publisher, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/keys", srv.publishKey).Methods(http.MethodPost)
	r.HandleFunc("/keys/replace", srv.replaceKey).Methods(http.MethodPost)
	r.HandleFunc("/keys/{user}", srv.activeKey).Methods(http.MethodGet)

	r.HandleFunc("/conversations", srv.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/direct", srv.findDirect).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", srv.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/messages", srv.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/conversations", srv.userConversations).Methods(http.MethodGet)

	r.HandleFunc("/messages", srv.appendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", srv.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/edit", srv.editMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/delete", srv.deleteMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/delivered", srv.markDelivered).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/read", srv.markRead).Methods(http.MethodPost)

	httpSrv := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", *addr).Msg("listening")
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
