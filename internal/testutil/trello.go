// Package testutil provides shared test utilities across packages.
package testutil

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Credentials accepted by a TrelloServer unless overridden.
const (
	TestKey   = "testkey"
	TestToken = "testtoken"
)

// TrelloServer simulates the subset of the Trello REST API the client uses,
// served over TLS with a self-signed certificate.
type TrelloServer struct {
	server *httptest.Server

	mu          sync.Mutex
	key         string
	token       string
	boards      []*mockBoard
	lists       []*mockList
	cards       []*mockCard
	nextID      int
	alphabetize bool
	emptyBody   bool
	failStatus  int
	rateLimited bool
	closeConn   bool
	requestLog  []string
	connections int
}

type mockBoard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type mockList struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Closed  bool   `json:"closed"`
	IDBoard string `json:"idBoard"`
}

type mockCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Desc   string `json:"desc"`
	Closed bool   `json:"closed"`
	IDList string `json:"idList"`
}

// NewTrelloServer starts a mock API that accepts TestKey/TestToken.
// The server is closed when the test ends.
func NewTrelloServer(t *testing.T) *TrelloServer {
	t.Helper()
	m := &TrelloServer{
		key:        TestKey,
		token:      TestToken,
		requestLog: []string{},
	}
	m.server = httptest.NewUnstartedServer(http.HandlerFunc(m.handler))
	m.server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			m.mu.Lock()
			m.connections++
			m.mu.Unlock()
		}
	}
	m.server.StartTLS()
	t.Cleanup(m.server.Close)
	return m
}

// Pool returns a certificate pool trusting the server's certificate.
func (m *TrelloServer) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(m.server.Certificate())
	return pool
}

// Host returns the address the server listens on. The certificate is valid for it.
func (m *TrelloServer) Host() string {
	return "127.0.0.1"
}

// Port returns the port the server listens on.
func (m *TrelloServer) Port() int {
	return m.server.Listener.Addr().(*net.TCPAddr).Port
}

// CloseClientConnections drops every open connection, as a server restart would.
func (m *TrelloServer) CloseClientConnections() {
	m.server.CloseClientConnections()
}

func (m *TrelloServer) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%022d", prefix, m.nextID)
}

// AddBoard adds an open board and returns its remote ID.
func (m *TrelloServer) AddBoard(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &mockBoard{ID: m.newID("b"), Name: name}
	m.boards = append(m.boards, b)
	return b.ID
}

// AddList adds an open list to a board and returns its remote ID.
func (m *TrelloServer) AddList(boardID, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &mockList{ID: m.newID("l"), Name: name, IDBoard: boardID}
	m.lists = append(m.lists, l)
	return l.ID
}

// AddCard adds an open card to a list and returns its remote ID.
func (m *TrelloServer) AddCard(listID, name, desc string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &mockCard{ID: m.newID("c"), Name: name, Desc: desc, IDList: listID}
	m.cards = append(m.cards, c)
	return c.ID
}

// SetAlphabetize makes collection responses sort by name, as Trello does for boards.
func (m *TrelloServer) SetAlphabetize(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alphabetize = on
}

// SetEmptyBody makes successful responses carry no body.
func (m *TrelloServer) SetEmptyBody(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyBody = on
}

// SetFailStatus makes every request fail with status. Zero restores normal handling.
func (m *TrelloServer) SetFailStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
}

// SetRateLimited makes every request fail with 429 and Retry-After: 2.
func (m *TrelloServer) SetRateLimited(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = on
}

// SetCloseConnection makes the server answer with "Connection: close".
func (m *TrelloServer) SetCloseConnection(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn = on
}

// GetRequestLog returns "METHOD /path?query" for each request, credentials removed.
func (m *TrelloServer) GetRequestLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.requestLog...)
}

// LastRequest returns the most recent request log entry.
func (m *TrelloServer) LastRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requestLog) == 0 {
		return ""
	}
	return m.requestLog[len(m.requestLog)-1]
}

// ResetRequestLog clears the request log.
func (m *TrelloServer) ResetRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = []string{}
}

// Connections returns how many TCP connections the server has accepted.
func (m *TrelloServer) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}

// BoardByName returns the remote board with name, open or closed.
func (m *TrelloServer) BoardByName(name string) (id string, closed bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.boards {
		if b.Name == name {
			return b.ID, b.Closed, true
		}
	}
	return "", false, false
}

// ListName returns the current name of a remote list.
func (m *TrelloServer) ListName(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.findList(id); l != nil {
		return l.Name
	}
	return ""
}

// Card returns the current name, description and closed flag of a remote card.
func (m *TrelloServer) Card(id string) (name, desc string, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.findCard(id); c != nil {
		return c.Name, c.Desc, c.Closed
	}
	return "", "", false
}

// IsClosed reports whether the board, list or card with the remote id is closed.
func (m *TrelloServer) IsClosed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.findBoard(id); b != nil {
		return b.Closed
	}
	if l := m.findList(id); l != nil {
		return l.Closed
	}
	if c := m.findCard(id); c != nil {
		return c.Closed
	}
	return false
}

func (m *TrelloServer) findBoard(id string) *mockBoard {
	for _, b := range m.boards {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (m *TrelloServer) findList(id string) *mockList {
	for _, l := range m.lists {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (m *TrelloServer) findCard(id string) *mockCard {
	for _, c := range m.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// stripSecret removes key and token from a raw query, keeping parameter order.
func stripSecret(rawQuery string) string {
	var kept []string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" || strings.HasPrefix(part, "key=") || strings.HasPrefix(part, "token=") {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

func (m *TrelloServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := r.Method + " " + r.URL.Path
	if q := stripSecret(r.URL.RawQuery); q != "" {
		entry += "?" + q
	}
	m.requestLog = append(m.requestLog, entry)

	if m.closeConn {
		w.Header().Set("Connection", "close")
	}

	if m.rateLimited {
		w.Header().Set("Retry-After", "2")
		http.Error(w, "API_TOKEN_LIMIT_EXCEEDED", http.StatusTooManyRequests)
		return
	}
	if m.failStatus != 0 {
		http.Error(w, http.StatusText(m.failStatus), m.failStatus)
		return
	}

	query := r.URL.Query()
	if query.Get("key") != m.key {
		http.Error(w, "invalid key", http.StatusUnauthorized)
		return
	}
	if query.Get("token") != m.token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	path := r.URL.Path

	switch {
	case path == "/1/members/me/boards" && r.Method == http.MethodGet:
		m.handleGetBoards(w)
	case (path == "/1/boards" || path == "/1/boards/") && r.Method == http.MethodPost:
		m.handleCreateBoard(w, r)
	case strings.HasPrefix(path, "/1/boards/") && strings.HasSuffix(path, "/lists") && r.Method == http.MethodGet:
		m.handleGetLists(w, strings.TrimSuffix(strings.TrimPrefix(path, "/1/boards/"), "/lists"))
	case strings.HasPrefix(path, "/1/boards/") && r.Method == http.MethodPut:
		m.handleUpdateBoard(w, r, strings.TrimPrefix(path, "/1/boards/"))
	case path == "/1/lists" && r.Method == http.MethodPost:
		m.handleCreateList(w, r)
	case strings.HasPrefix(path, "/1/lists/") && strings.HasSuffix(path, "/cards") && r.Method == http.MethodGet:
		m.handleGetCards(w, strings.TrimSuffix(strings.TrimPrefix(path, "/1/lists/"), "/cards"))
	case strings.HasPrefix(path, "/1/lists/") && r.Method == http.MethodPut:
		m.handleUpdateList(w, r, strings.TrimPrefix(path, "/1/lists/"))
	case path == "/1/cards" && r.Method == http.MethodPost:
		m.handleCreateCard(w, r)
	case strings.HasPrefix(path, "/1/cards/") && r.Method == http.MethodGet:
		m.handleGetCard(w, strings.TrimPrefix(path, "/1/cards/"))
	case strings.HasPrefix(path, "/1/cards/") && r.Method == http.MethodPut:
		m.handleUpdateCard(w, r, strings.TrimPrefix(path, "/1/cards/"))
	default:
		http.Error(w, "Cannot "+r.Method+" "+path, http.StatusNotFound)
	}
}

func (m *TrelloServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if m.emptyBody {
		w.WriteHeader(http.StatusOK)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (m *TrelloServer) handleGetBoards(w http.ResponseWriter) {
	result := []map[string]string{}
	for _, b := range m.boards {
		if !b.Closed {
			result = append(result, map[string]string{"id": b.ID, "name": b.Name})
		}
	}
	m.sortByName(result)
	m.writeJSON(w, result)
}

func (m *TrelloServer) handleGetLists(w http.ResponseWriter, boardID string) {
	if m.findBoard(boardID) == nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	result := []map[string]string{}
	for _, l := range m.lists {
		if l.IDBoard == boardID && !l.Closed {
			result = append(result, map[string]string{"id": l.ID, "name": l.Name, "idBoard": l.IDBoard})
		}
	}
	m.sortByName(result)
	m.writeJSON(w, result)
}

func (m *TrelloServer) handleGetCards(w http.ResponseWriter, listID string) {
	if m.findList(listID) == nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	result := []map[string]string{}
	for _, c := range m.cards {
		if c.IDList == listID && !c.Closed {
			result = append(result, map[string]string{"id": c.ID, "name": c.Name, "desc": c.Desc})
		}
	}
	m.sortByName(result)
	m.writeJSON(w, result)
}

func (m *TrelloServer) handleGetCard(w http.ResponseWriter, id string) {
	c := m.findCard(id)
	if c == nil {
		http.Error(w, "The requested resource was not found.", http.StatusNotFound)
		return
	}
	m.writeJSON(w, map[string]string{"id": c.ID, "name": c.Name, "desc": c.Desc})
}

func (m *TrelloServer) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "invalid value for name", http.StatusBadRequest)
		return
	}
	b := &mockBoard{ID: m.newID("b"), Name: name}
	m.boards = append(m.boards, b)
	m.writeJSON(w, b)
}

func (m *TrelloServer) handleCreateList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := query.Get("name")
	if name == "" {
		http.Error(w, "invalid value for name", http.StatusBadRequest)
		return
	}
	boardID := query.Get("idBoard")
	if m.findBoard(boardID) == nil {
		http.Error(w, "invalid value for idBoard", http.StatusBadRequest)
		return
	}
	l := &mockList{ID: m.newID("l"), Name: name, IDBoard: boardID}
	m.lists = append(m.lists, l)
	m.writeJSON(w, l)
}

func (m *TrelloServer) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listID := query.Get("idList")
	if m.findList(listID) == nil {
		http.Error(w, "invalid value for idList", http.StatusBadRequest)
		return
	}
	c := &mockCard{ID: m.newID("c"), Name: query.Get("name"), Desc: query.Get("desc"), IDList: listID}
	m.cards = append(m.cards, c)
	m.writeJSON(w, c)
}

func (m *TrelloServer) handleUpdateBoard(w http.ResponseWriter, r *http.Request, id string) {
	b := m.findBoard(id)
	if b == nil {
		http.Error(w, "The requested resource was not found.", http.StatusNotFound)
		return
	}
	query := r.URL.Query()
	if query.Has("name") {
		b.Name = query.Get("name")
	}
	if closed, err := strconv.ParseBool(query.Get("closed")); err == nil {
		b.Closed = closed
	}
	m.writeJSON(w, b)
}

func (m *TrelloServer) handleUpdateList(w http.ResponseWriter, r *http.Request, id string) {
	l := m.findList(id)
	if l == nil {
		http.Error(w, "The requested resource was not found.", http.StatusNotFound)
		return
	}
	query := r.URL.Query()
	if query.Has("name") {
		l.Name = query.Get("name")
	}
	if closed, err := strconv.ParseBool(query.Get("closed")); err == nil {
		l.Closed = closed
	}
	m.writeJSON(w, l)
}

func (m *TrelloServer) handleUpdateCard(w http.ResponseWriter, r *http.Request, id string) {
	c := m.findCard(id)
	if c == nil {
		http.Error(w, "The requested resource was not found.", http.StatusNotFound)
		return
	}
	query := r.URL.Query()
	if query.Has("name") {
		c.Name = query.Get("name")
	}
	if query.Has("desc") {
		c.Desc = query.Get("desc")
	}
	if closed, err := strconv.ParseBool(query.Get("closed")); err == nil {
		c.Closed = closed
	}
	m.writeJSON(w, c)
}

func (m *TrelloServer) sortByName(items []map[string]string) {
	if !m.alphabetize {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i]["name"]) < strings.ToLower(items[j]["name"])
	})
}
