package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	agentsx "github.com/chronicai/chronicai/agent/agents"
	auditx "github.com/chronicai/chronicai/agent/audit"
	datastorex "github.com/chronicai/chronicai/agent/datastore"
	flowx "github.com/chronicai/chronicai/agent/flow"
	llmx "github.com/chronicai/chronicai/agent/llm"
	policyx "github.com/chronicai/chronicai/agent/policy"
	sqlguardx "github.com/chronicai/chronicai/agent/sqlguard"
	statex "github.com/chronicai/chronicai/agent/state"
	toolx "github.com/chronicai/chronicai/agent/tool"
	configx "github.com/chronicai/chronicai/pkg/config"
	_ "github.com/chronicai/chronicai/pkg/logger/autoload"
	openrouterx "github.com/chronicai/chronicai/pkg/openrouter"
)

type AppConfig struct {
	UserID            string        `envconfig:"USER_ID" split_words:"true" required:"true"`
	AllowedTablesPath string        `envconfig:"ALLOWED_TABLES_PATH" split_words:"true" default:"allowed_tables.yaml"`
	AllowlistTTL      time.Duration `envconfig:"ALLOWLIST_TTL" split_words:"true" default:"5m"`
	AuditPath         string        `envconfig:"AUDIT_PATH" split_words:"true" default:"audit/sql_audit.jsonl"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	dsCfg := configx.MustNew[datastorex.Config]("DATASTORE")
	flowCfg := configx.MustNew[flowx.Config]("FLOW")

	client := openrouterx.NewClient(llmCfg.ClientConfig())
	if client == nil {
		log.Fatal().Msg("failed to initialize model client")
	}
	embedder, err := openrouterx.NewEmbedder(client, llmCfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize embedder")
	}

	ds, err := datastorex.New(*dsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize datastore")
	}
	retriever, err := datastorex.NewRetriever(ds, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize retriever")
	}

	allow, err := policyx.NewAllowlist(appCfg.AllowedTablesPath, appCfg.AllowlistTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize allow-list")
	}
	// fail fast on an unreadable or empty allow-list instead of rejecting
	// every query at runtime
	if _, err := allow.Tables(); err != nil {
		log.Fatal().Err(err).Str("path", appCfg.AllowedTablesPath).Msg("allow-list is not servable")
	}

	guard, err := sqlguardx.New(allow)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sql guard")
	}

	gateway, err := toolx.NewGateway(ds, retriever, guard, allow, auditx.NewFileRecorder(appCfg.AuditPath))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tool gateway")
	}

	registry, err := agentsx.NewRegistry(client, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize specialists")
	}

	executor, err := flowx.NewExecutor(gateway, flowCfg.MaxToolRounds)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize step executor")
	}
	orchestrator, err := flowx.NewOrchestrator(registry, executor, ds, *flowCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}
	svc, err := flowx.NewService(statex.NewInMemoryStore(), orchestrator)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session service")
	}

	log.Info().Str("user_id", appCfg.UserID).Msg("chronicai ready")
	runConsole(svc, appCfg.UserID)
}

// runConsole drives the session loop over stdin. "/profile" refreshes the
// profile pipeline, anything else is a chat turn in the same session.
func runConsole(svc *flowx.Service, userID string) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	var sessionID string
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "exit" || line == "quit":
			return
		case line == "/profile":
			res, err := svc.Profile(ctx, sessionID, userID)
			sessionID = res.SessionID
			if err != nil {
				log.Error().Err(err).Msg("profile turn failed")
				break
			}
			fmt.Println("profile refreshed")
		default:
			res, err := svc.Chat(ctx, sessionID, userID, line)
			sessionID = res.SessionID
			if err != nil {
				log.Error().Err(err).Msg("chat turn failed")
				break
			}
			fmt.Println(res.Reply)
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("stdin closed unexpectedly")
	}
}
