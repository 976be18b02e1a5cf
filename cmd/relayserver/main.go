package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/streamrelay/chat-relay/internal/api"
	"github.com/streamrelay/chat-relay/internal/messaging"
	"github.com/streamrelay/chat-relay/internal/metrics"
	"github.com/streamrelay/chat-relay/internal/protocol"
	"github.com/streamrelay/chat-relay/internal/provider"
	"github.com/streamrelay/chat-relay/internal/ratelimit"
	"github.com/streamrelay/chat-relay/internal/relay"
	"github.com/streamrelay/chat-relay/internal/room"
	"github.com/streamrelay/chat-relay/internal/session"
	"github.com/streamrelay/chat-relay/internal/store"
	"github.com/streamrelay/chat-relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "relay-1"
	}

	sessionStore, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	// --- Postgres ---
	var st *store.Store
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		st, err = store.Open(databaseURL)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := st.Migrate(); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	} else {
		log.Printf("DATABASE_URL not set, persistence disabled")
	}

	// --- Providers ---
	openaiKey := os.Getenv("OPENAI_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")
	adapters := map[string]provider.Adapter{
		"openai": provider.NewOpenAI(openaiKey),
		"gemini": provider.NewGemini(geminiKey),
	}

	log.Printf("chat relay server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)
	log.Printf("  persistence:     %v", st != nil)
	log.Printf("  openai_key:      %v", openaiKey != "")
	log.Printf("  gemini_key:      %v", geminiKey != "")

	// --- Fan-out: local registry bridged over NATS ---
	registry := room.NewRegistry()
	fanout := messaging.NewFanout(registry, natsClient, serverName)
	if err := fanout.Start(); err != nil {
		log.Fatalf("failed to start room event bridge: %v", err)
	}

	var gateway relay.Gateway
	var titles relay.TitleGenerator
	if st != nil {
		gateway = st
		titles = provider.NewTitleGenerator(geminiKey)
	}
	coordinator := relay.NewCoordinator(fanout, gateway, titles, adapters)

	limiter := ratelimit.NewLimiter(sessionStore.Client())

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// join: subscribe the connection to a room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinMsg)
		if !ok || joinMsg.RoomID == "" {
			return
		}
		registry.Join(joinMsg.RoomID, conn.ID, conn)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.AddRoom(ctx, conn.ID, joinMsg.RoomID); err != nil {
			log.Printf("join: record room for session=%s: %v", conn.ID, err)
		}

		log.Printf("join session=%s room=%s", conn.ID, joinMsg.RoomID)
	})

	// -----------------------------------------------------------------------
	// message: start a streaming completion session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		msgMsg, ok := msg.(protocol.MessageMsg)
		if !ok {
			return
		}
		sid := conn.ID
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if allowed, _ := limiter.Allow(ctx, sid, ratelimit.RuleGenerate); !allowed {
			dispatcher.SendError(conn, "too many requests, slow down")
			return
		}

		// Bind the session to the sender's identity for later lookups.
		if msgMsg.UserID != "" {
			if err := sessionStore.SetUser(ctx, sid, msgMsg.UserID, msgMsg.Nickname); err != nil {
				log.Printf("message: bind user for session=%s: %v", sid, err)
			}
		}

		sess, err := coordinator.Begin(msgMsg)
		if err != nil {
			switch {
			case errors.Is(err, relay.ErrSessionActive):
				dispatcher.SendError(conn, "generation already in progress for this room")
			case errors.Is(err, relay.ErrInvalidRequest):
				dispatcher.SendError(conn, "invalid message")
			default:
				dispatcher.SendError(conn, "unable to start generation")
			}
			log.Printf("message rejected session=%s: %v", sid, err)
			return
		}

		// Subscribe the sender before the first delta so it sees the whole
		// stream, including for a freshly minted room.
		registry.Join(sess.RoomID, sid, conn)
		if err := sessionStore.AddRoom(ctx, sid, sess.RoomID); err != nil {
			log.Printf("message: record room for session=%s: %v", sid, err)
		}

		log.Printf("message session=%s room=%s provider=%s turns=%d",
			sid, sess.RoomID, msgMsg.Provider, len(msgMsg.Turns))
		go sess.Run()
	})

	server := ws.NewServer(config, sessionStore, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	// Per-IP connect limiting on upgrade.
	server.SetConnectGate(func(remoteAddr string) bool {
		ip, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			ip = remoteAddr
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		allowed, _ := limiter.Allow(ctx, ip, ratelimit.RuleConnect)
		return allowed
	})

	// Drop all room subscriptions when a connection goes away.
	server.SetOnDisconnect(func(connID string) {
		registry.LeaveAll(connID)
	})

	// HTTP surface: metrics always, room endpoints when persistence is on.
	server.Handle("/metrics", metrics.Handler())
	if st != nil {
		apiHandler := api.NewHandler(st)
		server.Handle("/rooms", http.HandlerFunc(apiHandler.Rooms))
		server.Handle("/rooms/delete", http.HandlerFunc(apiHandler.DeleteRoom))
		server.Handle("/messages/delete", http.HandlerFunc(apiHandler.DeleteMessage))
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		if st != nil {
			if err := st.Close(); err != nil {
				log.Printf("store close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
