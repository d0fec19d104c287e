package tier

import "testing"

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Tier
	}{
		{"bronze", Bronze},
		{"silver", Silver},
		{"gold", Gold},
		{"GOLD", Gold},
		{"  silver ", Silver},
		{"", Bronze},
		{"platinum", Bronze},
	}

	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"bronze", "Silver", "GOLD"} {
		if !Valid(ok) {
			t.Errorf("Valid(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "platinum", "gol d"} {
		if Valid(bad) {
			t.Errorf("Valid(%q) = true", bad)
		}
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	bronze := Bronze.Capabilities()
	if bronze.Memory || bronze.Tasks || bronze.PersistentSession || len(bronze.GatedFeatures) != 0 {
		t.Errorf("bronze capabilities = %+v, want none", bronze)
	}

	silver := Silver.Capabilities()
	if !silver.Memory || !silver.Tasks {
		t.Errorf("silver missing memory/tasks: %+v", silver)
	}
	if silver.PersistentSession {
		t.Error("silver must not get a persistent session")
	}
	if len(silver.GatedFeatures) == 0 {
		t.Error("silver must gate reserved features")
	}

	gold := Gold.Capabilities()
	if !gold.Memory || !gold.Tasks || !gold.PersistentSession {
		t.Errorf("gold missing capabilities: %+v", gold)
	}
	if len(gold.GatedFeatures) != 0 {
		t.Error("gold must not gate anything")
	}
}

func TestAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		t, other Tier
		want     bool
	}{
		{Bronze, Bronze, true},
		{Bronze, Silver, false},
		{Silver, Bronze, true},
		{Silver, Gold, false},
		{Gold, Silver, true},
		{Gold, Gold, true},
	}

	for _, tt := range tests {
		if got := tt.t.AtLeast(tt.other); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.t, tt.other, got, tt.want)
		}
	}
}

func TestGated(t *testing.T) {
	t.Parallel()

	if kw := Silver.Gated("can you Browse the docs for me?"); kw == "" {
		t.Error("silver browse prompt should be gated")
	}
	if kw := Silver.Gated("what's the BTC price?"); kw != "" {
		t.Errorf("plain prompt gated on %q", kw)
	}
	if kw := Gold.Gated("browse the web for me"); kw != "" {
		t.Errorf("gold prompt gated on %q", kw)
	}
	if kw := Bronze.Gated("browse the web"); kw != "" {
		t.Errorf("bronze has no gate list, got %q", kw)
	}
}
