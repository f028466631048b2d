// Package server implements a small reference chat server speaking the same
// API the client mirrors consume. It backs `quill serve` for local
// development and the integration tests; state lives in memory only.
package server

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/config"
)

const serverVersion = "quill-dev 0.3"

// defaultStreams is the fixed demo subscription set every account sees.
var defaultStreams = []api.Subscription{
	{StreamID: 1, Name: "general", Description: "Anything and everything", Color: "#a6c7e5"},
	{StreamID: 2, Name: "engineering", Description: "Build talk", Color: "#76ce90"},
}

// App coordinates the HTTP surface and the queue hub.
type App struct {
	cfg   config.ServerConfig
	log   zerolog.Logger
	hub   *queueHub
	fiber *fiber.App

	nextMessageID atomic.Int64
}

// NewApp constructs the dev server.
func NewApp(cfg config.ServerConfig, log zerolog.Logger) *App {
	a := &App{
		cfg: cfg,
		log: log,
		hub: newQueueHub(cfg.QueueTTL),
	}

	f := fiber.New(fiber.Config{DisableStartupMessage: true})
	f.Post("/api/v1/register", a.handleRegister)
	f.Get("/api/v1/events", a.handleEvents)
	f.Post("/api/v1/messages", a.handleSendMessage)
	a.fiber = f
	return a
}

// Run serves until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.fiber.ShutdownWithTimeout(5 * time.Second)
	}()
	a.log.Info().Str("addr", a.cfg.ListenAddr).Msg("dev server listening")
	return a.fiber.Listen(a.cfg.ListenAddr)
}

func (a *App) handleRegister(c *fiber.Ctx) error {
	email, ok := basicAuthUser(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "", "missing credentials")
	}

	queueID := uuid.NewString()
	lastEventID := a.hub.register(queueID, email)

	token, err := newQueueToken(a.cfg.JWT, queueID, email)
	if err != nil {
		a.log.Error().Err(err).Msg("queue token issue")
		return respondError(c, fiber.StatusInternalServerError, "", "token generation failed")
	}

	a.log.Info().Str("queue_id", queueID).Str("email", email).Msg("queue registered")
	return c.JSON(api.RegisterResponse{
		QueueID:          queueID,
		QueueToken:       token,
		LastEventID:      lastEventID,
		ServerVersion:    serverVersion,
		MaxUploadSizeMiB: a.cfg.MaxUploadSizeMiB,
		Subscriptions:    defaultStreams,
	})
}

func (a *App) handleEvents(c *fiber.Ctx) error {
	queueID := c.Query("queue_id")
	lastEventID := int64(c.QueryInt("last_event_id", -1))
	if queueID == "" || lastEventID < 0 {
		return respondError(c, fiber.StatusBadRequest, "", "queue_id and last_event_id are required")
	}

	claims, err := parseQueueToken(a.cfg.JWT, bearerToken(c))
	if err != nil || claims.Subject != queueID {
		return respondError(c, fiber.StatusUnauthorized, "", "invalid queue token")
	}

	deadline := time.Now().Add(a.cfg.LongPollTimeout)
	for {
		batch, wake, ok := a.hub.collect(queueID, lastEventID)
		if !ok {
			return respondError(c, fiber.StatusGone, "BAD_EVENT_QUEUE_ID", "queue "+queueID+" is expired or unknown")
		}
		if len(batch) > 0 {
			return c.JSON(fiber.Map{"events": batch})
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Nothing arrived within the window; answer with a heartbeat so
			// the client learns the queue is still alive.
			a.hub.heartbeat(queueID)
			continue
		}

		timer := time.NewTimer(minDuration(remaining, 250*time.Millisecond))
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
		case <-c.Context().Done():
			timer.Stop()
			return nil
		}
	}
}

func (a *App) handleSendMessage(c *fiber.Ctx) error {
	email, ok := basicAuthUser(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "", "missing credentials")
	}

	var req api.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "", "malformed message body")
	}
	req.Topic = strings.TrimSpace(req.Topic)
	req.Content = strings.TrimSpace(req.Content)
	if req.Topic == "" || req.Content == "" {
		return respondError(c, fiber.StatusBadRequest, "", "topic and content are required")
	}

	msg := api.Message{
		ID:          a.nextMessageID.Add(1),
		SenderEmail: email,
		SenderName:  senderName(email),
		Stream:      defaultStreams[0].Name,
		Topic:       req.Topic,
		Content:     req.Content,
		Timestamp:   time.Now().Unix(),
	}
	a.hub.broadcastMessage(msg)

	a.log.Debug().Int64("message_id", msg.ID).Str("topic", msg.Topic).Msg("message posted")
	return c.JSON(api.SendMessageResponse{ID: msg.ID})
}

func respondError(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{"result": "error", "code": code, "msg": msg})
}

func basicAuthUser(c *fiber.Ctx) (string, bool) {
	email, _, ok := parseBasicAuth(c.Get(fiber.HeaderAuthorization))
	if !ok || email == "" {
		return "", false
	}
	return email, true
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}

func senderName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
