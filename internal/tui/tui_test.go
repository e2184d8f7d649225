package tui_test

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"iroha/internal/client"
	"iroha/internal/hierarchy"
	"iroha/internal/tui"
	"iroha/internal/utils"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

func typeText(tm *teatest.TestModel, text string) {
	for _, r := range text {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	time.Sleep(20 * time.Millisecond)
}

// readAll reads all output from a reader and returns as bytes
func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

type fakeItem struct {
	name   string
	desc   string
	closed bool
}

// fakeClient implements tui.Client over an in-memory hierarchy keyed by the
// parent's friendly ID ("" for boards).
type fakeClient struct {
	mu       sync.Mutex
	children map[string][]*fakeItem
	calls     []string
	failView  bool
	emptyView bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		children: map[string][]*fakeItem{
			"": {
				{name: "Work"},
				{name: "Personal"},
			},
			"0": {
				{name: "Todo"},
				{name: "Done"},
			},
			"0-0": {
				{name: "Review PR", desc: "Check the session code\nthen merge"},
				{name: "Write tests"},
			},
		},
	}
}

func (f *fakeClient) rows(parent string) []client.Row {
	rows := []client.Row{}
	i := 0
	for _, it := range f.children[parent] {
		if it.closed {
			continue
		}
		id := strconv.Itoa(i)
		if parent != "" {
			id = hierarchy.MintChild(parent, i)
		}
		rows = append(rows, client.Row{ID: id, Name: it.name, Desc: it.desc})
		i++
	}
	return rows
}

func (f *fakeClient) find(id hierarchy.ID) *fakeItem {
	parent := ""
	if p, ok := id.Parent(); ok {
		parent = p.String()
	}
	raw := id.String()
	index, _ := strconv.Atoi(raw[len(parent):][boolToInt(parent != ""):])
	i := 0
	for _, it := range f.children[parent] {
		if it.closed {
			continue
		}
		if i == index {
			return it
		}
		i++
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (f *fakeClient) scopeOf(id hierarchy.ID) string {
	if p, ok := id.Parent(); ok {
		return p.String()
	}
	return ""
}

func (f *fakeClient) View(_ context.Context, id hierarchy.ID) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "view "+id.String())
	if f.failView {
		return nil, &utils.RemoteError{StatusCode: 500, Reason: "Internal Server Error"}
	}
	if f.emptyView {
		return nil, utils.ErrEmptyResponse
	}
	return f.rows(id.String()), nil
}

func (f *fakeClient) Create(_ context.Context, parent hierarchy.ID, name string) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create "+parent.String()+" "+name)
	f.children[parent.String()] = append(f.children[parent.String()], &fakeItem{name: name})
	return f.rows(parent.String()), nil
}

func (f *fakeClient) rename(id hierarchy.ID, name, desc string, setDesc bool) ([]client.Row, error) {
	it := f.find(id)
	if it == nil {
		return nil, utils.ErrItemNotFound(id.Level().String(), id.String())
	}
	it.name = name
	if setDesc {
		it.desc = desc
	}
	return f.rows(f.scopeOf(id)), nil
}

func (f *fakeClient) UpdateBoard(_ context.Context, id hierarchy.ID, name string) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+id.String()+" "+name)
	return f.rename(id, name, "", false)
}

func (f *fakeClient) UpdateList(_ context.Context, id hierarchy.ID, name string) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+id.String()+" "+name)
	return f.rename(id, name, "", false)
}

func (f *fakeClient) UpdateCard(_ context.Context, id hierarchy.ID, name, desc string) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+id.String()+" "+name)
	return f.rename(id, name, desc, true)
}

func (f *fakeClient) CloseItem(_ context.Context, id hierarchy.ID) ([]client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "close "+id.String())
	it := f.find(id)
	if it == nil {
		return nil, utils.ErrItemNotFound(id.Level().String(), id.String())
	}
	it.closed = true
	return f.rows(f.scopeOf(id)), nil
}

func (f *fakeClient) CardDetail(_ context.Context, id hierarchy.ID) (client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "detail "+id.String())
	it := f.find(id)
	if it == nil {
		return client.Row{}, utils.ErrItemNotFound("card", id.String())
	}
	return client.Row{ID: id.String(), Name: it.name, Desc: it.desc}, nil
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeClient) isClosed(parent string, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.children[parent] {
		if it.name == name {
			return it.closed
		}
	}
	return false
}

func hasCall(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func startModel(t *testing.T, fc *fakeClient) *teatest.TestModel {
	t.Helper()
	model := tui.New(context.Background(), fc)
	tm := teatest.NewTestModel(t, model, teatest.WithInitialTermSize(100, 30))
	time.Sleep(100 * time.Millisecond)
	return tm
}

func TestTUILaunchShowsBoards(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Work")) || !bytes.Contains(out, []byte("Personal")) {
		t.Errorf("expected boards to be visible, got:\n%s", out)
	}
	if !hasCall(fc.Calls(), "view ") {
		t.Errorf("expected boards view on launch, calls: %v", fc.Calls())
	}
}

func TestTUIDrillIntoListsAndCards(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	for _, want := range []string{"Todo", "Review PR", "Check the session code...", "Work › Todo"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("expected %q in output", want)
		}
	}
	calls := fc.Calls()
	if !hasCall(calls, "view 0") || !hasCall(calls, "view 0-0") {
		t.Errorf("expected lists and cards views, calls: %v", calls)
	}
}

func TestTUIBackNavigation(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyDown})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	_ = readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !hasCall(fc.Calls(), "view 1") {
		t.Errorf("expected second board opened after going back, calls: %v", fc.Calls())
	}
}

func TestTUICardDetail(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("then merge"))
	}, teatest.WithDuration(time.Second))

	sendRunesAndWait(tm, []rune{' '})
	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	if !hasCall(fc.Calls(), "detail 0-0-0") {
		t.Errorf("expected card detail, calls: %v", fc.Calls())
	}
}

func TestTUICreateBoard(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendRunesAndWait(tm, []rune{'n'})
	typeText(tm, "Roadmap")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Roadmap")) {
		t.Error("expected new board to appear")
	}
	if !hasCall(fc.Calls(), "create  Roadmap") {
		t.Errorf("expected board creation, calls: %v", fc.Calls())
	}
}

func TestTUICreateCancelled(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendRunesAndWait(tm, []rune{'n'})
	typeText(tm, "Nope")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})

	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
	for _, c := range fc.Calls() {
		if c == "create  Nope" {
			t.Error("cancelled dialog must not create")
		}
	}
}

func TestTUIRenameList(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'e'})
	// Clear the prefilled name.
	for range "Todo" {
		tm.Send(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	typeText(tm, "Backlog")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Backlog")) {
		t.Error("expected renamed list to appear")
	}
	if !hasCall(fc.Calls(), "update 0-0 Backlog") {
		t.Errorf("expected list rename, calls: %v", fc.Calls())
	}
}

func TestTUICloseWithConfirm(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyDown})
	sendRunesAndWait(tm, []rune{'x'})
	sendRunesAndWait(tm, []rune{'y'})
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	if !hasCall(fc.Calls(), "close 1") {
		t.Errorf("expected board 1 closed, calls: %v", fc.Calls())
	}
	if !fc.isClosed("", "Personal") {
		t.Error("Personal should be closed")
	}
}

func TestTUICloseDeclined(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendRunesAndWait(tm, []rune{'x'})
	sendRunesAndWait(tm, []rune{'n'})
	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))

	if fc.isClosed("", "Work") {
		t.Error("declined close must not close")
	}
}

func TestTUIShowsErrors(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	fc.mu.Lock()
	fc.failView = true
	fc.mu.Unlock()

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("request failed: 500"))
	}, teatest.WithDuration(time.Second))

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

func TestTUIHelp(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	sendRunesAndWait(tm, []rune{'?'})

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Key Bindings"))
	}, teatest.WithDuration(time.Second))

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

func TestModelIgnoresKeysWhileBusy(t *testing.T) {
	fc := newFakeClient()
	m := tui.New(context.Background(), fc)
	m.Update(tea.WindowSizeMsg{Width: 200, Height: 30})
	load := m.Init() // marks the model busy until boards arrive

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if cmd != nil {
		t.Error("keys should be ignored while loading")
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd != nil {
		t.Fatal("quit must wait for the running request")
	}
	if !strings.Contains(m.View(), "Quitting after the current request") {
		t.Errorf("status bar should announce the pending quit:\n%s", m.View())
	}

	_, cmd = m.Update(load())
	if cmd == nil {
		t.Fatal("expected quit once the boards arrived")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit message")
	}
}

func TestModelQuitsImmediatelyWhenIdle(t *testing.T) {
	fc := newFakeClient()
	m := tui.New(context.Background(), fc)
	load := m.Init()
	m.Update(load())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit when idle")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit message")
	}
}

func TestTUIEmptyResponseIsNotAnError(t *testing.T) {
	fc := newFakeClient()
	tm := startModel(t, fc)

	fc.mu.Lock()
	fc.emptyView = true
	fc.mu.Unlock()

	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(50 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("No data.")) {
		t.Error("expected the no data status")
	}
	if bytes.Contains(out, []byte("Error:")) {
		t.Error("an empty response must not be shown as an error")
	}
}

var _ tui.Client = (*fakeClient)(nil)
