package testutil

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func get(t *testing.T, m *TrelloServer, method, target string) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: m.Pool()}}}
	req, err := http.NewRequest(method, fmt.Sprintf("https://%s:%d%s", m.Host(), m.Port(), target), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

const secret = "key=" + TestKey + "&token=" + TestToken

func TestTrelloServerRequiresSecret(t *testing.T) {
	m := NewTrelloServer(t)

	resp, _ := get(t, m, http.MethodGet, "/1/members/me/boards")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	resp, _ = get(t, m, http.MethodGet, "/1/members/me/boards?key="+TestKey+"&token=nope")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestTrelloServerAlphabetizesAndHidesClosed(t *testing.T) {
	m := NewTrelloServer(t)
	m.SetAlphabetize(true)
	m.AddBoard("Zulu")
	m.AddBoard("Alpha")
	closed := m.AddBoard("Closed")
	get(t, m, http.MethodPut, "/1/boards/"+closed+"?closed=true&"+secret)

	_, body := get(t, m, http.MethodGet, "/1/members/me/boards?fields=name&filter=open&"+secret)
	var boards []map[string]string
	if err := json.Unmarshal(body, &boards); err != nil {
		t.Fatalf("bad JSON %q: %v", body, err)
	}
	if len(boards) != 2 || boards[0]["name"] != "Alpha" || boards[1]["name"] != "Zulu" {
		t.Errorf("boards = %v", boards)
	}
	if !m.IsClosed(closed) {
		t.Error("board should be closed")
	}
}

func TestTrelloServerRequestLogStripsSecret(t *testing.T) {
	m := NewTrelloServer(t)
	get(t, m, http.MethodPost, "/1/boards/?name=Roadmap&defaultLists=false&"+secret)

	if got := m.LastRequest(); got != "POST /1/boards/?name=Roadmap&defaultLists=false" {
		t.Errorf("LastRequest = %q", got)
	}
	if _, _, ok := m.BoardByName("Roadmap"); !ok {
		t.Error("board not created")
	}
	m.ResetRequestLog()
	if len(m.GetRequestLog()) != 0 {
		t.Error("log not reset")
	}
}

func TestTrelloServerFailureModes(t *testing.T) {
	m := NewTrelloServer(t)

	m.SetRateLimited(true)
	resp, _ := get(t, m, http.MethodGet, "/1/members/me/boards?"+secret)
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "2" {
		t.Errorf("rate limited reply = %d %q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	m.SetRateLimited(false)

	m.SetFailStatus(http.StatusBadGateway)
	resp, _ = get(t, m, http.MethodGet, "/1/members/me/boards?"+secret)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	m.SetFailStatus(0)

	m.SetEmptyBody(true)
	resp, body := get(t, m, http.MethodGet, "/1/members/me/boards?"+secret)
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("empty body reply = %d %q", resp.StatusCode, body)
	}
	m.SetEmptyBody(false)

	resp, _ = get(t, m, http.MethodGet, "/1/boards/unknown/lists?"+secret)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown board status = %d, want 400", resp.StatusCode)
	}
	resp, _ = get(t, m, http.MethodDelete, "/1/boards/x?"+secret)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unrouted status = %d, want 404", resp.StatusCode)
	}
}
