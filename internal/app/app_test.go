package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/grouparchive/internal/config"
	"github.com/matheus3301/grouparchive/internal/groupme"
	"github.com/matheus3301/grouparchive/internal/lock"
	"github.com/matheus3301/grouparchive/internal/store"
	intsync "github.com/matheus3301/grouparchive/internal/sync"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func serve(t *testing.T, h fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, h) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(string) (net.Conn, error) { return ln.Dial() }
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	b, _ := json.Marshal(v)
	_, _ = ctx.Write(b)
}

// groupAPI serves group "Family" with n messages by one member.
func groupAPI(n int) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		args := ctx.QueryArgs()
		switch string(ctx.Path()) {
		case "/v3/groups":
			var groups []groupme.Group
			if string(args.Peek("page")) == "1" {
				g := groupme.Group{ID: "42", Name: "Family"}
				g.Messages.Count = n
				groups = append(groups, g)
			}
			writeJSON(ctx, map[string]any{"response": groups})
		case "/v3/groups/42":
			writeJSON(ctx, map[string]any{"response": map[string]any{
				"id":      "42",
				"members": []groupme.Member{{UserID: "u1", Nickname: "Alice"}},
			}})
		case "/v3/groups/42/messages":
			before := n + 1
			if b := args.Peek("before_id"); len(b) > 0 {
				before, _ = strconv.Atoi(string(b))
			}
			limit, _ := strconv.Atoi(string(args.Peek("limit")))
			var msgs []groupme.Message
			for id := before - 1; id >= 1 && len(msgs) < limit; id-- {
				msgs = append(msgs, groupme.Message{ID: strconv.Itoa(id), UserID: "u1", Name: "Alice", Text: fmt.Sprint("m", id), CreatedAt: int64(id)})
			}
			if len(msgs) == 0 {
				ctx.SetStatusCode(fasthttp.StatusNotModified)
				return
			}
			writeJSON(ctx, map[string]any{"response": map[string]any{"count": n, "messages": msgs}})
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

// channelAPI records every posted text.
type channelAPI struct {
	mu    gosync.Mutex
	texts []string
}

func (c *channelAPI) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/api/conversations.create":
		_, _ = ctx.WriteString(`{"ok":true}`)
	case "/api/chat.postMessage":
		var body struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(ctx.PostBody(), &body)
		c.mu.Lock()
		c.texts = append(c.texts, body.Text)
		c.mu.Unlock()
		_, _ = ctx.WriteString(`{"ok":true}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (c *channelAPI) posted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testSettings(t *testing.T, dial fasthttp.DialFunc) Settings {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.GroupMeBaseURL = "http://api.test/v3"
	cfg.SlackBaseURL = "http://slack.test/api"
	cfg.PageSize = 2
	cfg.SlackRPS = 0
	cfg.ProgressEvery = 2
	cfgPath := filepath.Join(dir, "config.toml")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}
	return Settings{
		LogPath:     filepath.Join(dir, "run.log"),
		ConfigPath:  cfgPath,
		Database:    filepath.Join(dir, "database.db"),
		MetricsFile: filepath.Join(dir, "run.prom"),
		Dial:        dial,
	}
}

func runStage(t *testing.T, opt fx.Option) (int, error) {
	t.Helper()
	var out *Outcome
	app := fxtest.New(t, opt, fx.Populate(&out))
	app.RequireStart()
	var sig fx.ShutdownSignal
	select {
	case sig = <-app.Wait():
	case <-time.After(10 * time.Second):
		t.Fatal("stage did not finish")
	}
	app.RequireStop()
	return sig.ExitCode, out.Err()
}

func openStore(t *testing.T, path string) *store.DB {
	t.Helper()
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExtractModule(t *testing.T) {
	t.Setenv(config.GroupMeTokenEnv, "tok")
	s := testSettings(t, serve(t, groupAPI(5)))
	var stdout bytes.Buffer

	code, err := runStage(t, ExtractModule(ExtractParams{
		Settings: s,
		Group:    "Family",
		Stats:    true,
		Stdout:   &stdout,
	}))
	if err != nil || code != 0 {
		t.Fatalf("exit %d, err = %v", code, err)
	}

	db := openStore(t, s.Database)
	n, err := db.CountOrdered()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("CountOrdered() = %d, want 5", n)
	}
	if !strings.Contains(stdout.String(), "messages     5") {
		t.Errorf("stats output = %q", stdout.String())
	}

	prom, err := os.ReadFile(s.MetricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "grouparchive_messages_stored_total 5") {
		t.Errorf("metrics file missing message count:\n%s", prom)
	}
	if _, err := os.Stat(lock.PathFor(s.Database)); !os.IsNotExist(err) {
		t.Error("lock file should be released after the stage")
	}
}

func TestExtractModuleUnknownGroup(t *testing.T) {
	t.Setenv(config.GroupMeTokenEnv, "tok")
	s := testSettings(t, serve(t, groupAPI(1)))

	code, err := runStage(t, ExtractModule(ExtractParams{Settings: s, Group: "Nope"}))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !errors.Is(err, groupme.ErrGroupNotFound) {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestExtractModuleMissingToken(t *testing.T) {
	t.Setenv(config.GroupMeTokenEnv, "")
	s := testSettings(t, nil)

	app := fx.New(ExtractModule(ExtractParams{Settings: s, Group: "Family"}), fx.NopLogger)
	if err := app.Err(); err == nil || !strings.Contains(err.Error(), config.GroupMeTokenEnv) {
		t.Errorf("app.Err() = %v, want missing %s", err, config.GroupMeTokenEnv)
	}
}

func TestStageRefusesHeldLock(t *testing.T) {
	t.Setenv(config.SlackTokenEnv, "xoxb-1")
	s := testSettings(t, nil)

	held, err := lock.Acquire(s.Database, "grouparchive")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	app := fx.New(ReplayModule(ReplayParams{Settings: s, Channel: "#archive"}), fx.NopLogger)
	var lockErr *lock.LockHeldError
	if !errors.As(app.Err(), &lockErr) {
		t.Errorf("app.Err() = %v, want *lock.LockHeldError", app.Err())
	}
}

func seed(t *testing.T, path string, n int) {
	t.Helper()
	db := openStore(t, path)
	if err := db.UpsertUsers([]store.User{{ID: "u1", Name: "Alice"}}); err != nil {
		t.Fatal(err)
	}
	var msgs []store.Message
	for i := 1; i <= n; i++ {
		msgs = append(msgs, store.Message{
			ID:     strconv.Itoa(i),
			UserID: "u1",
			Text:   sql.NullString{String: fmt.Sprint("m", i), Valid: true},
			Date:   float64(i),
		})
	}
	if err := db.UpsertMessages(msgs); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()
}

func TestReplayModuleResume(t *testing.T) {
	t.Setenv(config.SlackTokenEnv, "xoxb-1")
	api := &channelAPI{}
	s := testSettings(t, serve(t, api.handle))
	seed(t, s.Database, 3)

	code, err := runStage(t, ReplayModule(ReplayParams{Settings: s, Channel: "#archive", Sleeper: noSleep{}}))
	if err != nil || code != 0 {
		t.Fatalf("exit %d, err = %v", code, err)
	}
	if got := api.posted(); strings.Join(got, ",") != "m1,m2,m3" {
		t.Errorf("posted = %v, want m1,m2,m3", got)
	}

	db := openStore(t, s.Database)
	next, err := intsync.NewReconciler(db, nil).LoadOrdinal("archive")
	if err != nil {
		t.Fatal(err)
	}
	if next != 3 {
		t.Errorf("checkpoint = %d, want 3", next)
	}
	_ = db.Close()

	code, err = runStage(t, ReplayModule(ReplayParams{Settings: s, Channel: "archive", Resume: true, Sleeper: noSleep{}}))
	if err != nil || code != 0 {
		t.Fatalf("resumed run: exit %d, err = %v", code, err)
	}
	if got := api.posted(); len(got) != 3 {
		t.Errorf("resumed run posted again: %v", got)
	}
}

func TestReplayModuleStartIndexBeatsResume(t *testing.T) {
	t.Setenv(config.SlackTokenEnv, "xoxb-1")
	api := &channelAPI{}
	s := testSettings(t, serve(t, api.handle))
	seed(t, s.Database, 3)

	code, err := runStage(t, ReplayModule(ReplayParams{
		Settings:   s,
		Channel:    "#archive",
		StartIndex: 2,
		StartSet:   true,
		Resume:     true,
		Sleeper:    noSleep{},
	}))
	if err != nil || code != 0 {
		t.Fatalf("exit %d, err = %v", code, err)
	}
	if got := api.posted(); len(got) != 1 || got[0] != "m3" {
		t.Errorf("posted = %v, want [m3]", got)
	}
}

func TestReplayModuleInvalidChannel(t *testing.T) {
	t.Setenv(config.SlackTokenEnv, "xoxb-1")
	s := testSettings(t, nil)

	app := fx.New(ReplayModule(ReplayParams{Settings: s, Channel: "#Not Valid"}), fx.NopLogger)
	if err := app.Err(); err == nil || !strings.Contains(err.Error(), "invalid channel name") {
		t.Errorf("app.Err() = %v, want invalid channel name", err)
	}
}
