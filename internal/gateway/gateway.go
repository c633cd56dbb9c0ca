// Package gateway exposes the supply chain over HTTP. The JWT claims on
// each request supply the caller identity the ledgers key everything by;
// a live websocket stream relays committed events to observers.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/internal/auth"
	"github.com/terminal-bench/energychain/internal/chain"
	"github.com/terminal-bench/energychain/internal/snapshots"
)

// AccountService handles registration, login, and token verification.
// Satisfied by *auth.Service.
type AccountService interface {
	Register(ctx context.Context, address, password string) (*auth.Account, error)
	Login(ctx context.Context, address, password string) (string, error)
	VerifyToken(token string) (*auth.Claims, error)
}

// Subscriber registers event handlers, satisfied by *messaging.Client.
type Subscriber interface {
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// Config holds gateway settings.
type Config struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Gateway is the HTTP API.
type Gateway struct {
	router   *gin.Engine
	chain    *chain.Chain
	accounts AccountService
	cache    *snapshots.Cache
	limiter  *rateLimiter
	log      logrus.FieldLogger

	wsMu      sync.RWMutex
	wsClients map[uuid.UUID]*wsClient
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New creates a gateway over c. cache may be nil, in which case reads
// go straight to the chain.
func New(cfg Config, c *chain.Chain, accounts AccountService, cache *snapshots.Cache, log logrus.FieldLogger) *Gateway {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	g := &Gateway{
		router:   gin.New(),
		chain:    c,
		accounts: accounts,
		cache:    cache,
		limiter: &rateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
		log:       log,
		wsClients: make(map[uuid.UUID]*wsClient),
	}
	g.router.Use(gin.Recovery())
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.rateLimitMiddleware())

	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/auth/register", g.register)
		v1.POST("/auth/login", g.login)

		v1.POST("/powerplants", g.authMiddleware(), g.addPowerPlant)
		v1.POST("/powerplants/energy", g.authMiddleware(), g.addEnergy)
		v1.GET("/powerplants/:id", g.getPowerPlant)
		v1.GET("/powerplants/:id/produced/:day", g.getPlantProduced)
		v1.GET("/powerplants/:id/sold/:day", g.getPlantSold)
		v1.GET("/powerplants/:id/substations", g.getPlantSubstations)

		v1.POST("/substations", g.authMiddleware(), g.addSubstation)
		v1.POST("/substations/connect", g.authMiddleware(), g.connectSubstation)
		v1.POST("/substations/purchase", g.authMiddleware(), g.buyEnergy)
		v1.GET("/substations/:id", g.getSubstation)
		v1.GET("/substations/:id/bought/:day", g.getSubstationBought)
		v1.GET("/substations/:id/sold/:day", g.getSubstationSold)

		v1.POST("/distributors", g.authMiddleware(), g.addDistributor)
		v1.GET("/distributors/:id", g.getDistributor)
		v1.GET("/distributors/:id/consumers", g.getDistributorConsumers)

		v1.POST("/consumers", g.authMiddleware(), g.addConsumer)
		v1.POST("/consumers/connect", g.authMiddleware(), g.connectConsumer)
		v1.GET("/consumers/:id", g.getConsumer)
		v1.GET("/consumers/:id/consumed/:day", g.getConsumerConsumed)

		// The metering pass is permissionless: anyone may drive it.
		v1.POST("/metering/tick", g.tick)

		v1.GET("/ws", g.handleWebSocket)
	}
}

// Router exposes the underlying handler for serving and tests.
func (g *Gateway) Router() http.Handler {
	return g.router
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		claims, err := g.accounts.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("caller", claims.Address)
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.limiter.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	valid := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, time.Now())
	return true
}

// WebSocket event stream

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	g.wsMu.Lock()
	g.wsClients[client.id] = client
	g.wsMu.Unlock()

	go g.wsWritePump(client)
	go g.wsReadPump(client)
}

func (g *Gateway) wsReadPump(client *wsClient) {
	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, client.id)
		g.wsMu.Unlock()
		close(client.done)
		client.conn.Close()
	}()

	for {
		// Observers only receive; any read error tears the client down.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) wsWritePump(client *wsClient) {
	for {
		select {
		case message := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// StartEventStream relays every chain event to connected websocket
// observers.
func (g *Gateway) StartEventStream(sub Subscriber) error {
	return sub.Subscribe("energy.>", func(msg *nats.Msg) {
		g.broadcast(msg.Data)
	})
}

func (g *Gateway) broadcast(message []byte) {
	g.wsMu.RLock()
	defer g.wsMu.RUnlock()

	for _, client := range g.wsClients {
		select {
		case client.send <- message:
		default:
			// Slow observer; drop rather than block the stream.
		}
	}
}
