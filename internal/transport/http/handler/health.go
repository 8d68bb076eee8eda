package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cortex/internal/bootstrap"
)

// Probe checks one dependency. Detail is reported even when healthy.
type Probe struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) (detail string, err error)
}

type HealthHandler struct {
	name      string
	env       string
	startedAt time.Time
	probes    []Probe
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(name, env string, startedAt time.Time, probes ...Probe) *HealthHandler {
	return &HealthHandler{name: name, env: env, startedAt: startedAt, probes: probes}
}

// AppProbes reports the stores, the persist queue and the model endpoint.
func AppProbes(app *bootstrap.App) []Probe {
	return []Probe{
		{Name: "mysql", Required: true, Check: func(ctx context.Context) (string, error) {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return "", err
			}
			return "", sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Required: true, Check: func(ctx context.Context) (string, error) {
			return "", app.Redis.Ping(ctx).Err()
		}},
		{Name: "rabbitmq", Required: true, Check: func(ctx context.Context) (string, error) {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return "", errors.New("connection closed")
			}
			ch, err := app.MQConn.Channel()
			if err != nil {
				return "", err
			}
			defer ch.Close()
			q, err := ch.QueueDeclarePassive(app.Config.RabbitMQ.PersistQueue, true, false, false, false, nil)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d pending writes", q.Messages), nil
		}},
		{Name: "llm", Check: func(ctx context.Context) (string, error) {
			if app.Config.LLM.APIKey == "" {
				return "", errors.New("LLM_API_KEY not set")
			}
			return app.Config.LLM.Model, nil
		}},
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{}
	statusCode := http.StatusOK
	for _, p := range h.probes {
		detail, err := p.Check(ctx)
		if err != nil {
			deps[p.Name] = dependencyStatus{OK: false, Message: err.Error()}
			if p.Required {
				statusCode = http.StatusServiceUnavailable
			}
			continue
		}
		deps[p.Name] = dependencyStatus{OK: true, Message: detail}
	}

	c.JSON(statusCode, gin.H{
		"app":          h.name,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
	})
}
