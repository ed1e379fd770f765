package guard

import "testing"

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		p, ok := PresetByName(name)
		if !ok {
			t.Fatalf("preset %q not found", name)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
		if p.Name != name {
			t.Errorf("preset name mismatch: %q vs %q", p.Name, name)
		}
	}
	if IsPreset("nope") {
		t.Error("IsPreset should reject unknown names")
	}
}

func TestPresetEdgeReadonlyDeniesWrites(t *testing.T) {
	p := PresetEdgeReadonly()

	v := p.Apply(Request{Tool: "echo"}, RiskLow)
	if v.Decision != DecisionAllow {
		t.Errorf("echo: expected allow, got %s", v.Decision)
	}
	v = p.Apply(Request{Tool: "file_write", Path: "out.txt"}, RiskMedium)
	if v.Decision != DecisionDeny {
		t.Errorf("file_write: expected deny, got %s", v.Decision)
	}
	v = p.Apply(Request{Tool: "shell_exec", Command: "ls"}, RiskHigh)
	if v.Decision != DecisionDeny {
		t.Errorf("shell_exec: expected deny, got %s", v.Decision)
	}
}

func TestPresetCoreSafeShellScope(t *testing.T) {
	p := PresetCoreSafe()

	v := p.Apply(Request{Tool: "shell_exec", Command: "git status --short"}, RiskHigh)
	if v.Decision != DecisionAllow {
		t.Errorf("git status: expected allow, got %s", v.Decision)
	}
	if v.Risk != RiskMedium {
		t.Errorf("git status: expected downgrade to medium, got %s", v.Risk)
	}

	v = p.Apply(Request{Tool: "shell_exec", Command: "rm -rf /"}, RiskHigh)
	if v.Decision != DecisionRequireApproval {
		t.Errorf("rm: expected require_approval, got %s", v.Decision)
	}
}

func TestPresetBrainTrustedProtectsSecrets(t *testing.T) {
	p := PresetBrainTrusted()

	v := p.Apply(Request{Tool: "file_read", Path: "secrets/api.key"}, RiskLow)
	if v.Decision != DecisionDeny {
		t.Errorf("secrets read: expected deny, got %s", v.Decision)
	}
	v = p.Apply(Request{Tool: "shell_exec", Command: "curl http://example.com"}, RiskHigh)
	if v.Decision != DecisionDeny {
		t.Errorf("curl: expected deny, got %s", v.Decision)
	}
	v = p.Apply(Request{Tool: "shell_exec", Command: "make build"}, RiskHigh)
	if v.Decision != DecisionAllow {
		t.Errorf("make build: expected allow, got %s", v.Decision)
	}
}
