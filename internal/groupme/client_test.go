package groupme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"

	"github.com/matheus3301/grouparchive/internal/httpclient"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// fakeAPI serves a group with n messages, ids "1".."n", created_at = id*10.
type fakeAPI struct {
	n        int
	requests int
}

func (f *fakeAPI) handle(ctx *fasthttp.RequestCtx) {
	f.requests++
	args := ctx.QueryArgs()
	if bytes.HasPrefix(ctx.Path(), []byte("/v3")) && string(args.Peek("token")) != "tok" {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		writeJSON(ctx, map[string]any{"meta": map[string]any{"code": 401, "errors": []string{"unauthorized"}}})
		return
	}
	switch string(ctx.Path()) {
	case "/v3/groups":
		var groups []Group
		if string(args.Peek("page")) == "1" {
			g := Group{ID: "42", Name: "Family"}
			g.Messages.Count = f.n
			groups = append(groups, g, Group{ID: "7", Name: "Work"})
		}
		writeJSON(ctx, map[string]any{"response": groups, "meta": map[string]any{"code": 200}})
	case "/v3/groups/42":
		writeJSON(ctx, map[string]any{"response": map[string]any{
			"id": "42", "name": "Family",
			"members": []Member{{UserID: "u1", Nickname: "Alice", ImageURL: "https://i.test/a"}},
		}})
	case "/v3/groups/42/messages":
		before := f.n + 1
		if b := args.Peek("before_id"); len(b) > 0 {
			before, _ = strconv.Atoi(string(b))
		}
		limit, _ := strconv.Atoi(string(args.Peek("limit")))
		var msgs []Message
		for id := before - 1; id >= 1 && len(msgs) < limit; id-- {
			msgs = append(msgs, Message{ID: strconv.Itoa(id), UserID: "u1", Name: "Alice", Text: fmt.Sprint("m", id), CreatedAt: int64(id * 10)})
		}
		if len(msgs) == 0 {
			ctx.SetStatusCode(fasthttp.StatusNotModified)
			return
		}
		writeJSON(ctx, map[string]any{"response": map[string]any{"count": f.n, "messages": msgs}})
	case "/img/p.jpeg.abc":
		_, _ = ctx.Write([]byte("imagebytes"))
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	b, _ := json.Marshal(v)
	_, _ = ctx.Write(b)
}

func testClient(t *testing.T, api *fakeAPI, token string) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, api.handle) }()
	t.Cleanup(func() { _ = ln.Close() })
	return New("http://api.test/v3", token, httpclient.Options{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	})
}

func TestFindGroup(t *testing.T) {
	c := testClient(t, &fakeAPI{n: 5}, "tok")

	g, err := c.FindGroup(context.Background(), "Family")
	if err != nil {
		t.Fatal(err)
	}
	if g.ID != "42" || g.MessageCount() != 5 {
		t.Errorf("group = %+v, want id 42 with 5 messages", g)
	}

	_, err = c.FindGroup(context.Background(), "Nope")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestMembers(t *testing.T) {
	c := testClient(t, &fakeAPI{}, "tok")

	members, err := c.Members(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].Nickname != "Alice" {
		t.Errorf("members = %+v", members)
	}
}

func TestStatusError(t *testing.T) {
	c := testClient(t, &fakeAPI{}, "bad")

	_, err := c.ListGroups(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != 401 || len(se.Errors) != 1 {
		t.Errorf("status error = %+v", se)
	}
}

func TestPagerWalksToEmptyPage(t *testing.T) {
	api := &fakeAPI{n: 7}
	c := testClient(t, api, "tok")
	p := NewPager(c, "42", 3)

	var ids []string
	for {
		page, err := p.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			ids = append(ids, m.ID)
		}
	}

	want := []string{"7", "6", "5", "4", "3", "2", "1"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	// Exhausted pagers do not hit the API again.
	before := api.requests
	if page, err := p.Next(context.Background()); err != nil || len(page) != 0 {
		t.Errorf("Next after end = %v, %v", page, err)
	}
	if api.requests != before {
		t.Error("exhausted pager made a request")
	}
}

func TestDownload(t *testing.T) {
	c := testClient(t, &fakeAPI{}, "tok")

	b, err := c.Download(context.Background(), "http://i.test/img/p.jpeg.abc")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "imagebytes" {
		t.Errorf("body = %q", b)
	}

	if _, err := c.Download(context.Background(), "http://i.test/img/missing"); err == nil {
		t.Error("expected error for 404")
	}
}
