package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cortex/internal/client/gateway"
	"cortex/internal/client/inference"
	"cortex/internal/config"
	"cortex/internal/conversation"
	"cortex/internal/events"
	"cortex/internal/knowledge"
	"cortex/internal/platform/browser"
	"cortex/internal/settings"
	"cortex/internal/shell"
	"cortex/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	client := cfg.Client

	if err := os.MkdirAll(filepath.Dir(client.LogFile), 0o700); err != nil {
		log.Fatalf("create log dir failed: %v", err)
	}
	logFile, err := tea.LogToFile(client.LogFile, "cortex ")
	if err != nil {
		log.Fatalf("open log file failed: %v", err)
	}
	defer logFile.Close()
	logger := log.Default()

	sessions, err := gateway.OpenSessionStore(client.TokenFile)
	if err != nil {
		log.Fatalf("open session store failed: %v", err)
	}
	prefs, err := settings.Open(client.SettingsFile)
	if err != nil {
		log.Fatalf("open settings failed: %v", err)
	}

	api := gateway.New(client.ServerURL, sessions, nil)
	engine := inference.New(inference.Options{
		BaseURL: inference.ResolveBaseURL(client.ServerURL, client.APIURL),
		Policy:  inference.ParsePolicy(client.FailurePolicy),
		Session: sessions,
		Logger:  logger,
	})
	log.Printf("client starting: server=%s policy=%s", client.ServerURL, client.FailurePolicy)

	lookups := events.NewBus[events.CitationLookup]()
	chat := conversation.NewController(conversation.Options{
		Inference:    engine,
		Store:        api,
		Identity:     sessions,
		Instructions: prefs,
		Logger:       logger,
	})
	panel := knowledge.NewPanel(api, engine, sessions, logger)
	panel.Listen(lookups)
	defer panel.Close()

	opener := browser.New()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	model := tui.New(ctx, tui.Deps{
		Shell:              shell.New(sessions.SignedIn()),
		Chat:               chat,
		Knowledge:          panel,
		Settings:           settings.NewView(prefs, api),
		Router:             conversation.NewCitationRouter(opener, lookups),
		Clipboard:          opener,
		Auth:               api,
		Sessions:           sessions,
		Logger:             logger,
		TypewriterInterval: time.Duration(client.TypewriterMillis) * time.Millisecond,
		SplashDuration:     time.Duration(client.SplashMillis) * time.Millisecond,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		log.Printf("program exited: %v", err)
		os.Exit(1)
	}
	if n := chat.PersistFailures(); n > 0 {
		log.Printf("%d persistence writes failed this session", n)
	}
}
