package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/h1v3-io/intake/internal/config"
	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/dialogue"
	"github.com/h1v3-io/intake/internal/filing"
	"github.com/h1v3-io/intake/internal/provider"
	"github.com/h1v3-io/intake/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "try":
		cmdTry(args)
	case "health":
		cmdHealth()
	case "stats":
		cmdStats()
	case "conversations":
		if len(args) == 0 || args[0] == "list" {
			cmdConversationsList()
			return
		}
		if args[0] != "show" || len(args) < 2 {
			fatalUsage("usage: intakectl conversations <list|show <key>>")
		}
		cmdConversationsShow(args[1])
	case "filings":
		cmdFilings(args)
	case "digest":
		cmdDigest()
	case "logs":
		cmdLogs(args)
	case "config":
		if len(args) < 2 || args[0] != "validate" {
			fatalUsage("usage: intakectl config validate <path>")
		}
		cmdConfigValidate(args[1])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- try: local dialogue without Slack or Linear ---

func cmdTry(args []string) {
	fs := pflag.NewFlagSet("try", pflag.ExitOnError)
	provType := fs.String("provider", envOr("INTAKE_PROVIDER", ""), "Provider type: anthropic or openai")
	model := fs.String("model", os.Getenv("INTAKE_MODEL"), "LLM model name")
	apiKey := fs.String("api-key", "", "API key (or ANTHROPIC_API_KEY / OPENAI_API_KEY)")
	baseURL := fs.String("base-url", os.Getenv("INTAKE_PROVIDER_BASE_URL"), "Override API base URL")
	name := fs.String("as", envOr("USER", "you"), "Display name used as the requester")
	verbose := fs.BoolP("verbose", "v", false, "Verbose logging")
	fs.Parse(args)

	if *provType == "" {
		*provType = config.ProviderAnthropic
		if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") != "" {
			*provType = config.ProviderOpenAI
		}
	}
	if *apiKey == "" {
		switch *provType {
		case config.ProviderOpenAI:
			*apiKey = os.Getenv("OPENAI_API_KEY")
		default:
			*apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if *apiKey == "" {
		fatal(errors.New("API key required (--api-key, ANTHROPIC_API_KEY, or OPENAI_API_KEY)"))
	}

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	var prov provider.Provider
	switch *provType {
	case config.ProviderOpenAI:
		var opts []provider.OpenAIOption
		if *model != "" {
			opts = append(opts, provider.WithModel(*model))
		}
		if *baseURL != "" {
			opts = append(opts, provider.WithBaseURL(*baseURL))
		}
		prov = provider.NewOpenAI(*apiKey, opts...)
	default:
		var opts []provider.AnthropicOption
		if *model != "" {
			opts = append(opts, provider.WithAnthropicModel(*model))
		}
		if *baseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(*baseURL))
		}
		prov = provider.NewAnthropic(*apiKey, opts...)
	}

	engine := &dialogue.Engine{Provider: prov}
	filer := &filing.Filer{Provider: prov, Names: localUser(*name), Logger: logger}
	store := conversation.NewStore()
	ctx := context.Background()

	fmt.Println("intakectl try: pitch a feature to Jarrod (type 'quit' to exit)")
	fmt.Println()

	key := conversation.Key("local", "1")
	store.GetOrCreate(key, conversation.Origin{UserID: "local", ChannelID: "local", DirectMsg: true})

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		store.Append(key, protocol.RoleUser, line)
		st, _ := store.Get(key)
		reply, err := engine.NextReply(ctx, st.Turns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		store.Append(key, protocol.RoleAssistant, reply)
		fmt.Printf("\nJarrod: %s\n\n", reply)

		if !dialogue.IsClosing(reply) {
			continue
		}

		st, _ = store.Get(key)
		draft, err := filer.Draft(ctx, st)
		if err != nil {
			fatal(err)
		}
		fmt.Println("--- ticket preview (not filed) ---")
		fmt.Printf("Title: %s\n\n%s\n", draft.Request.Title, draft.Body)
		return
	}
}

type localUser string

func (u localUser) UserName(context.Context, string) (string, error) { return string(u), nil }

// --- API client commands ---

func cmdHealth() {
	body, err := apiDo(http.MethodGet, "/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdStats() {
	body, err := apiDo(http.MethodGet, "/api/stats")
	if err != nil {
		fatal(err)
	}
	var st struct {
		Date              string                 `json:"date"`
		Filed             []protocol.FiledTicket `json:"filed_today"`
		OpenConversations int                    `json:"open_conversations"`
		FailedFilings     int                    `json:"failed_filings"`
		Uptime            string                 `json:"uptime"`
		Jobs              []struct {
			Name     string    `json:"name"`
			Schedule string    `json:"schedule"`
			Next     time.Time `json:"next"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		fatal(err)
	}

	fmt.Printf("date: %s  uptime: %s  open conversations: %d\n", st.Date, st.Uptime, st.OpenConversations)
	fmt.Printf("filed today: %d  failed filings: %d\n", len(st.Filed), st.FailedFilings)
	for _, t := range st.Filed {
		fmt.Printf("  %-10s %s\n", t.Identifier, t.Title)
	}
	for _, j := range st.Jobs {
		fmt.Printf("job %-12s %-14s next %s\n", j.Name, j.Schedule, humanize.Time(j.Next))
	}
}

func cmdConversationsList() {
	body, err := apiDo(http.MethodGet, "/api/conversations")
	if err != nil {
		fatal(err)
	}
	var convs []map[string]any
	if err := json.Unmarshal(body, &convs); err != nil {
		fatal(err)
	}
	for _, c := range convs {
		fmt.Printf("%-32s %-12s turns=%-3v %s\n", c["key"], c["user_id"], c["turns"], c["last_active"])
	}
}

func cmdConversationsShow(key string) {
	body, err := apiDo(http.MethodGet, "/api/conversations/"+url.PathEscape(key))
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdFilings(args []string) {
	fs := pflag.NewFlagSet("filings", pflag.ExitOnError)
	status := fs.String("status", "", "Filter by status (filed|failed)")
	user := fs.String("user", "", "Filter by Slack user ID")
	since := fs.Duration("since", 0, "Only filings newer than this (e.g. 24h)")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", fmt.Sprint(*limit))
	if *status != "" {
		q.Set("status", *status)
	}
	if *user != "" {
		q.Set("user", *user)
	}
	if *since > 0 {
		q.Set("since", time.Now().Add(-*since).UTC().Format(time.RFC3339))
	}

	body, err := apiDo(http.MethodGet, "/api/filings?"+q.Encode())
	if err != nil {
		fatal(err)
	}
	var filings []struct {
		Status          string    `json:"status"`
		IssueIdentifier string    `json:"issue_identifier"`
		Title           string    `json:"title"`
		Error           string    `json:"error"`
		CreatedAt       time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(body, &filings); err != nil {
		fatal(err)
	}
	for _, f := range filings {
		detail := f.IssueIdentifier
		if f.Status == "failed" {
			detail = f.Error
		}
		fmt.Printf("%-7s %-16s %-40s %s\n", f.Status, humanize.Time(f.CreatedAt), f.Title, detail)
	}
}

func cmdDigest() {
	body, err := apiDo(http.MethodPost, "/api/digest")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdLogs(args []string) {
	fs := pflag.NewFlagSet("logs", pflag.ExitOnError)
	conv := fs.String("conversation", "", "Only entries for this conversation key")
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	limit := fs.Int("limit", 100, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", fmt.Sprint(*limit))
	if *conv != "" {
		q.Set("conversation", *conv)
	}
	if *level != "" {
		q.Set("level", *level)
	}

	body, err := apiDo(http.MethodGet, "/api/logs?"+q.Encode())
	if err != nil {
		fatal(err)
	}
	var entries []struct {
		Time    time.Time      `json:"time"`
		Level   string         `json:"level"`
		Message string         `json:"message"`
		Attrs   map[string]any `json:"attrs"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		fatal(err)
	}
	for _, e := range entries {
		fmt.Printf("%s %-5s %s", e.Time.Format(time.TimeOnly), e.Level, e.Message)
		for k, v := range e.Attrs {
			fmt.Printf(" %s=%v", k, v)
		}
		fmt.Println()
	}
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiDo(method, path string) ([]byte, error) {
	base := envOr("INTAKE_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("INTAKE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func fatalUsage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("intakectl: feature request intake bot CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  try                      Chat with the intake persona locally and preview the ticket")
	fmt.Println("  health                   Check daemon health")
	fmt.Println("  stats                    Today's filed tickets, open conversations, job schedule")
	fmt.Println("  conversations list       List open conversations")
	fmt.Println("  conversations show <k>   Show a conversation transcript")
	fmt.Println("  filings                  List ledger entries (--status, --user, --since, --limit)")
	fmt.Println("  digest                   Post the daily digest now")
	fmt.Println("  logs                     Recent daemon logs (--conversation, --level, --limit)")
	fmt.Println("  config validate <path>   Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  INTAKE_API_URL     Daemon URL (default: http://localhost:8080)")
	fmt.Println("  INTAKE_API_KEY     API key for authentication")
	fmt.Println("  ANTHROPIC_API_KEY  API key for the anthropic provider (try)")
	fmt.Println("  OPENAI_API_KEY     API key for the openai provider (try)")
}
