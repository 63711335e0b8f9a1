package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thingswise/etcdstat/internal/config"
	"github.com/thingswise/etcdstat/internal/kv"
	"github.com/thingswise/etcdstat/internal/logging"
	"github.com/thingswise/etcdstat/internal/source"
	"github.com/thingswise/etcdstat/internal/tree"
)

var errSensor = errors.New("sensor offline")

type fakeModule struct {
	mu    sync.Mutex
	calls int
	onCPU func(calls int)
}

func (*fakeModule) Name() string { return "fake" }

func (m *fakeModule) Funcs(context.Context) source.Funcs {
	return source.Funcs{
		"hostname": func() string { return "web1" },
		"cpu": func() float64 {
			m.mu.Lock()
			m.calls++
			n := m.calls
			m.mu.Unlock()
			if m.onCPU != nil {
				m.onCPU(n)
			}
			return 0.25
		},
		"broken": func() (string, error) { return "", errSensor },
		"disk_usage_pct": func(path string) (float64, error) {
			if path != "/" {
				return 0, os.ErrNotExist
			}
			return 0.6, nil
		},
		"addr": func(device, family string) string { return device + "/" + family },
	}
}

type put struct {
	key   string
	value string
	ttl   time.Duration
}

// recordingStore records writes before passing them to an in-memory store.
type recordingStore struct {
	*kv.Memory

	mu   sync.Mutex
	puts []put
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: kv.NewMemory()}
}

func (s *recordingStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.puts = append(s.puts, put{key: key, value: value, ttl: ttl})
	s.mu.Unlock()
	return s.Memory.Put(ctx, key, value, ttl)
}

func (s *recordingStore) writes() []put {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]put(nil), s.puts...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func loadFile(t *testing.T, content string, extra map[string]string) *config.File {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "etcdstat.cfg"), content)
	for name, body := range extra {
		writeFile(t, filepath.Join(dir, name), body)
	}

	f, err := config.LoadINI(filepath.Join(dir, "etcdstat.cfg"), "")
	if err != nil {
		t.Fatalf("LoadINI() error = %v", err)
	}
	return f
}

func newAgent(t *testing.T, cfg *config.Config, file *config.File, store kv.Store, m source.Module) *Agent {
	t.Helper()

	a, err := New(cfg, file, store, source.NewRegistry(m), logging.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestUpdatePublishesItems(t *testing.T) {
	t.Parallel()

	file := loadFile(t, `
[System]
/hosts/{{ hostname }}/cpu = {{ cpu }}
/hosts/{{ hostname }}/label = {{ hostname | upper }}-{{ (cpu * 100) | int }}

[Services]
/hosts/{{ hostname }}/static = up
`, nil)

	store := newRecordingStore()
	defer store.Close()
	cfg := &config.Config{Interval: 10 * time.Second, TreeRoot: "/"}
	a := newAgent(t, cfg, file, store, &fakeModule{})

	if len(a.Items()) != 3 {
		t.Fatalf("Items() = %d, want 3", len(a.Items()))
	}
	if err := a.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []put{
		{key: "/hosts/web1/cpu", value: "0.25", ttl: 20 * time.Second},
		{key: "/hosts/web1/label", value: "WEB1-25", ttl: 20 * time.Second},
		{key: "/hosts/web1/static", value: "up", ttl: 20 * time.Second},
	}
	got := store.writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestUpdateRendersJinjaItems(t *testing.T) {
	t.Parallel()

	file := loadFile(t, `
[System]
/stat/{{ hostname }}/disk = {{ disk_usage_pct("/") }}
/stat/{{ hostname }}/addr = {{ addr("eth0", "ip6") }}
/stat/{{ hostname }}/busy = {% if cpu > 0.2 %}yes{% else %}no{% endif %}
/stat/{{ hostname }}/missing = {{ disk_usage_pct("/missing") }}
`, nil)

	store := newRecordingStore()
	defer store.Close()
	m := &fakeModule{}
	a := newAgent(t, &config.Config{Interval: time.Second, TreeRoot: "/"}, file, store, m)

	err := a.Update(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Update() error = %v, want os.ErrNotExist", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "/stat/web1/disk", want: "0.6"},
		{key: "/stat/web1/addr", want: "eth0/ip6"},
		{key: "/stat/web1/busy", want: "yes"},
	}
	for _, tt := range tests {
		if got, ok := store.Get(tt.key); !ok || got != tt.want {
			t.Errorf("Get(%s) = %q, %v, want %q", tt.key, got, ok, tt.want)
		}
	}
	if len(store.writes()) != len(tests) {
		t.Fatalf("writes = %+v", store.writes())
	}
	if m.calls != 1 {
		t.Fatalf("cpu reads = %d, want 1", m.calls)
	}
}

func TestUpdateContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	file := loadFile(t, `
[System]
/a = {{ broken }}
/b = {{ cpu }}
`, nil)

	store := newRecordingStore()
	defer store.Close()
	a := newAgent(t, &config.Config{Interval: time.Second, TreeRoot: "/"}, file, store, &fakeModule{})

	err := a.Update(context.Background())
	if !errors.Is(err, errSensor) {
		t.Fatalf("Update() error = %v, want errSensor", err)
	}
	if v, ok := store.Get("/b"); !ok || v != "0.25" {
		t.Fatalf("Get(/b) = %q, %v", v, ok)
	}
	if _, ok := store.Get("/a"); ok {
		t.Fatal("failed item was written")
	}
}

func TestUpdatePublishesTrees(t *testing.T) {
	t.Parallel()

	file := loadFile(t, `
[Trees]
/summary/{{ hostname }} = trees/summary.yaml
/empty = trees/empty.yaml
`, map[string]string{
		"trees/summary.yaml": "\"^(hosts/{h}) {h}\":\n  cpu: \"^(cpu)\"\ncount: 2\n",
		"trees/empty.yaml":   "\"^(missing/value)\"\n",
	})

	store := newRecordingStore()
	defer store.Close()
	ctx := context.Background()
	for key, value := range map[string]string{
		"/cluster/hosts/b/cpu": "0.5",
		"/cluster/hosts/a/cpu": `{"user":0.1}`,
		"/elsewhere/x":         "1",
	} {
		if err := store.Memory.Put(ctx, key, value, 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	a := newAgent(t, &config.Config{Interval: time.Second, TreeRoot: "/cluster"}, file, store, &fakeModule{})
	if len(a.Trees()) != 2 {
		t.Fatalf("Trees() = %d, want 2", len(a.Trees()))
	}
	if err := a.Update(ctx); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, ok := store.Get("/summary/web1")
	if !ok {
		t.Fatal("tree was not published")
	}
	if want := `{"a":{"cpu":{"user":0.1}},"b":{"cpu":0.5},"count":2}`; got != want {
		t.Fatalf("tree = %s, want %s", got, want)
	}
	if _, ok := store.Get("/empty"); ok {
		t.Fatal("nil tree result was published")
	}
	for _, p := range store.writes() {
		if p.ttl != 2*time.Second {
			t.Fatalf("tree ttl = %s, want 2s", p.ttl)
		}
	}
}

func TestUpdateTreesWithoutSnapshotSupport(t *testing.T) {
	t.Parallel()

	file := loadFile(t, "[Trees]\n/t = t.json\n", map[string]string{
		"t.json": `{"n": "^(x)", "const": true}`,
	})

	var out strings.Builder
	a := newAgent(t, &config.Config{Interval: time.Second, TreeRoot: "/"}, file, kv.NewStdout(&out), &fakeModule{})

	if err := a.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := out.String(); got != "/t = {\"n\":null,\"const\":true}\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestNewRejectsBadTemplates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		extra   map[string]string
		wantErr error
	}{
		{name: "unclosed_call", content: "[System]\n/a = {{ nope( }}\n", wantErr: ErrTemplate},
		{name: "bad_name", content: "[Services]\n/a/{{ = 1\n", wantErr: ErrTemplate},
		{name: "missing_tree_file", content: "[Trees]\n/t = missing.yaml\n", wantErr: os.ErrNotExist},
		{
			name:    "bad_tree_syntax",
			content: "[Trees]\n/t = bad.yaml\n",
			extra:   map[string]string{"bad.yaml": "k: \"^()\"\n"},
			wantErr: tree.ErrSyntax,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			file := loadFile(t, tt.content, tt.extra)
			store := kv.NewMemory()
			defer store.Close()

			_, err := New(&config.Config{Interval: time.Second}, file, store, source.NewRegistry(&fakeModule{}), logging.Nop())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	ok := loadFile(t, "[System]\n/a = {{ cpu }}\n", nil)
	bad := loadFile(t, "[System]\n/a = {{ broken }}\n", nil)
	cfg := &config.Config{Interval: time.Second, Once: true, TreeRoot: "/"}

	store := kv.NewMemory()
	defer store.Close()

	if code := newAgent(t, cfg, ok, store, &fakeModule{}).Run(context.Background()); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}
	if code := newAgent(t, cfg, bad, store, &fakeModule{}).Run(context.Background()); code != 1 {
		t.Fatalf("Run() = %d, want 1", code)
	}
}

func TestRunUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &fakeModule{onCPU: func(calls int) {
		if calls == 3 {
			cancel()
		}
	}}

	store := kv.NewMemory()
	defer store.Close()
	file := loadFile(t, "[System]\n/a = {{ cpu }}\n", nil)
	a := newAgent(t, &config.Config{Interval: time.Millisecond, TreeRoot: "/"}, file, store, m)

	done := make(chan int, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("Run() = %d, want 0", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls != 3 {
		t.Fatalf("cycles = %d, want 3", m.calls)
	}
}
