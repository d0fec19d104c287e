package directive

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/v-sk/alice/pkg/alice/store"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Store, time.Time) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "alice.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if _, err := st.GetOrCreateUser("100", "tester"); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewProcessor(st, nil)
	p.now = func() time.Time { return now }
	return p, st, now
}

func TestApplyCreate(t *testing.T) {
	p, st, now := newTestProcessor(t)

	raw := `Done! I'll watch that for you.
[TASK_CREATE]
{"type": "price_monitor", "config": {"coin": "BTC", "target_price": 80000, "condition": "below", "cooldown": 60}}
[/TASK_CREATE]`

	out := p.Apply("100", raw, true)

	if !out.TaskCreated {
		t.Fatal("expected TaskCreated")
	}
	if strings.Contains(out.Text, "[TASK_CREATE]") || strings.Contains(out.Text, "{") {
		t.Errorf("markers leaked into text: %q", out.Text)
	}

	task, err := st.GetTask(out.CreatedTaskID)
	if err != nil || task == nil {
		t.Fatalf("created task not found: %v", err)
	}
	if task.Config.Coin != "BTC" || task.Config.Condition != "below" {
		t.Errorf("config = %+v", task.Config)
	}
	// Monitors get their first check one minute out, cooldown or not.
	if !task.NextRun.Equal(now.Add(time.Minute)) {
		t.Errorf("next_run = %v, want %v", task.NextRun, now.Add(time.Minute))
	}
}

func TestApplyCreateReportInterval(t *testing.T) {
	p, st, now := newTestProcessor(t)

	raw := `[TASK_CREATE]{"type": "scheduled_report", "config": {"topic": "crypto news", "interval": 30}}[/TASK_CREATE] Scheduled, you'll hear from me.`
	out := p.Apply("100", raw, true)

	if !out.TaskCreated {
		t.Fatal("expected TaskCreated")
	}
	task, _ := st.GetTask(out.CreatedTaskID)
	if !task.NextRun.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("next_run = %v, want +30m", task.NextRun)
	}
}

func TestApplyMalformedDirectives(t *testing.T) {
	p, st, _ := newTestProcessor(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", "sure [TASK_CREATE]{not json}[/TASK_CREATE] thing"},
		{"missing type", `ok [TASK_CREATE]{"config": {"coin": "BTC"}}[/TASK_CREATE] done`},
		{"missing config", `ok [TASK_CREATE]{"type": "price_monitor"}[/TASK_CREATE] done`},
		{"empty config", `ok [TASK_CREATE]{"type": "price_monitor", "config": {}}[/TASK_CREATE] done`},
		{"null config", `ok [TASK_CREATE]{"type": "price_monitor", "config": null}[/TASK_CREATE] done`},
		{"non-object config", `ok [TASK_CREATE]{"type": "price_monitor", "config": "BTC"}[/TASK_CREATE] done`},
		{"delete bad json", "ok [TASK_DELETE]nope[/TASK_DELETE] done"},
		{"user info bad json", "ok [USER_INFO]broken[/USER_INFO] done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Apply("100", tt.raw, true)

			if out.TaskCreated || out.TaskDeleted {
				t.Error("malformed directive must not mutate")
			}
			if strings.Contains(out.Text, "[") {
				t.Errorf("marker leaked: %q", out.Text)
			}
			tasks, _ := st.UserTasks("100")
			if len(tasks) != 0 {
				t.Errorf("store mutated: %d tasks", len(tasks))
			}
		})
	}
}

func TestApplyUnterminatedBlockLeftAlone(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	raw := `I would [TASK_CREATE]{"type": "price_monitor"} but forgot to close it`
	out := p.Apply("100", raw, true)

	if out.TaskCreated {
		t.Fatal("unterminated block must not create")
	}
	// Ambiguous boundary: text stays as-is rather than guessing.
	if !strings.Contains(out.Text, "[TASK_CREATE]") {
		t.Errorf("unterminated marker should remain: %q", out.Text)
	}
}

func TestApplyBronzeStripsWithoutSideEffects(t *testing.T) {
	p, st, _ := newTestProcessor(t)

	raw := `Watching! [TASK_CREATE]{"type": "price_monitor", "config": {"coin": "BTC", "target_price": 80000, "condition": "below"}}[/TASK_CREATE]`
	out := p.Apply("100", raw, false)

	if out.TaskCreated {
		t.Error("allowTasks=false must not create")
	}
	if strings.Contains(out.Text, "[TASK_CREATE]") {
		t.Errorf("marker must still be stripped: %q", out.Text)
	}
	tasks, _ := st.UserTasks("100")
	if len(tasks) != 0 {
		t.Errorf("store mutated for bronze: %d tasks", len(tasks))
	}
}

func TestApplyDeleteSelectors(t *testing.T) {
	seed := func(t *testing.T, st *store.Store, now time.Time) {
		t.Helper()
		mustCreate(t, st, "100", store.TaskPriceMonitor,
			store.TaskConfig{Coin: "BTC", TargetPrice: 80000, Condition: "below"}, now)
		mustCreate(t, st, "100", store.TaskPriceMonitor,
			store.TaskConfig{Coin: "ETH", TargetPrice: 2000, Condition: "above"}, now)
		mustCreate(t, st, "100", store.TaskScheduledReport,
			store.TaskConfig{Topic: "crypto news", Interval: 60}, now)
	}

	t.Run("delete all", func(t *testing.T) {
		p, st, now := newTestProcessor(t)
		seed(t, st, now)

		out := p.Apply("100", `[TASK_DELETE]{"all": true}[/TASK_DELETE]`, true)
		if !out.TaskDeleted {
			t.Fatal("expected TaskDeleted")
		}
		if out.DeleteMessage != "✅ Deleted all 3 tasks." {
			t.Errorf("message = %q", out.DeleteMessage)
		}
		if tasks, _ := st.UserTasks("100"); len(tasks) != 0 {
			t.Errorf("%d tasks survive delete-all", len(tasks))
		}
	})

	t.Run("delete all with nothing", func(t *testing.T) {
		p, _, _ := newTestProcessor(t)

		out := p.Apply("100", `[TASK_DELETE]{"all": true}[/TASK_DELETE]`, true)
		if out.TaskDeleted {
			t.Error("nothing deleted, TaskDeleted must be false")
		}
		if !strings.Contains(out.DeleteMessage, "no tasks") {
			t.Errorf("message = %q", out.DeleteMessage)
		}
	})

	t.Run("positional index", func(t *testing.T) {
		p, st, now := newTestProcessor(t)
		seed(t, st, now)

		out := p.Apply("100", `[TASK_DELETE]{"index": 2}[/TASK_DELETE]`, true)
		if !out.TaskDeleted {
			t.Fatal("expected TaskDeleted")
		}
		tasks, _ := st.UserTasks("100")
		if len(tasks) != 2 {
			t.Fatalf("%d tasks remain, want 2", len(tasks))
		}
		// The second task (ETH) is gone.
		for _, task := range tasks {
			if task.Config.Coin == "ETH" {
				t.Error("positional delete removed the wrong task")
			}
		}
	})

	t.Run("coin case-insensitive", func(t *testing.T) {
		p, st, now := newTestProcessor(t)
		seed(t, st, now)

		out := p.Apply("100", `[TASK_DELETE]{"coin": "btc"}[/TASK_DELETE]`, true)
		if !out.TaskDeleted {
			t.Fatal("expected TaskDeleted")
		}
		if !strings.Contains(out.DeleteMessage, "BTC") {
			t.Errorf("message = %q", out.DeleteMessage)
		}
		tasks, _ := st.UserTasks("100")
		if len(tasks) != 2 {
			t.Errorf("%d tasks remain, want 2", len(tasks))
		}
	})

	t.Run("type selector", func(t *testing.T) {
		p, st, now := newTestProcessor(t)
		seed(t, st, now)

		out := p.Apply("100", `[TASK_DELETE]{"task_type": "scheduled_report"}[/TASK_DELETE]`, true)
		if !out.TaskDeleted {
			t.Fatal("expected TaskDeleted")
		}
		tasks, _ := st.UserTasks("100")
		for _, task := range tasks {
			if task.Type == store.TaskScheduledReport {
				t.Error("report survived type delete")
			}
		}
	})

	t.Run("no match", func(t *testing.T) {
		p, st, now := newTestProcessor(t)
		seed(t, st, now)

		out := p.Apply("100", `[TASK_DELETE]{"coin": "DOGE"}[/TASK_DELETE]`, true)
		if out.TaskDeleted {
			t.Error("no match must not set TaskDeleted")
		}
		if !strings.Contains(out.DeleteMessage, "No matching task") {
			t.Errorf("message = %q", out.DeleteMessage)
		}
		if tasks, _ := st.UserTasks("100"); len(tasks) != 3 {
			t.Errorf("%d tasks remain, want 3", len(tasks))
		}
	})
}

func TestDeleteAppliesBeforeCreate(t *testing.T) {
	p, st, _ := newTestProcessor(t)

	// One message that cancels everything and sets up a new watch. The
	// fresh task must survive the delete.
	raw := `[TASK_DELETE]{"all": true}[/TASK_DELETE][TASK_CREATE]{"type": "price_monitor", "config": {"coin": "BTC", "target_price": 90000, "condition": "above"}}[/TASK_CREATE] done`
	out := p.Apply("100", raw, true)

	if !out.TaskCreated {
		t.Fatal("expected TaskCreated")
	}
	tasks, _ := st.UserTasks("100")
	if len(tasks) != 1 {
		t.Fatalf("%d tasks remain, want the new one", len(tasks))
	}
	if tasks[0].Config.TargetPrice != 90000 {
		t.Errorf("surviving task = %+v", tasks[0].Config)
	}
}

func TestConfirmationFallback(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	// Worker emitted only the directive, so the surrounding text is too
	// short to stand as a confirmation.
	raw := `[TASK_CREATE]{"type": "price_monitor", "config": {"coin": "BTC", "target_price": 80000, "condition": "below", "cooldown": 999999}}[/TASK_CREATE]`
	out := p.Apply("100", raw, true)

	if !out.TaskCreated {
		t.Fatal("expected TaskCreated")
	}
	for _, want := range []string{"BTC", "80,000", "<", "once"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("confirmation %q missing %q", out.Text, want)
		}
	}
}

func TestApplyUserInfo(t *testing.T) {
	p, st, _ := newTestProcessor(t)

	raw := `Nice to meet you! [USER_INFO]{"nickname": "Neo", "timezone": "UTC+8"}[/USER_INFO]`
	// Preferences apply regardless of tier.
	out := p.Apply("100", raw, false)

	if strings.Contains(out.Text, "[USER_INFO]") {
		t.Errorf("marker leaked: %q", out.Text)
	}
	if nick, _ := st.GetPreference("100", "nickname"); nick != "Neo" {
		t.Errorf("nickname = %q, want Neo", nick)
	}
	if tz, _ := st.GetPreference("100", "timezone"); tz != "UTC+8" {
		t.Errorf("timezone = %q, want UTC+8", tz)
	}
}

func mustCreate(t *testing.T, st *store.Store, userID, taskType string, cfg store.TaskConfig, now time.Time) int64 {
	t.Helper()
	id, err := st.CreateTask(userID, taskType, cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
