package guard

// PresetEdgeReadonly returns the "edge-readonly" preset.
// For low-trust edge nodes: diagnostics only, no side effects.
func PresetEdgeReadonly() Profile {
	return Profile{
		Name:        "edge-readonly",
		Description: "Read-only diagnostics for edge nodes. No side effects allowed.",
		Sandbox:     []string{"no_net", "read_only_fs"},
		Rules: []Rule{
			{Specifier: ToolSpecifier{Tool: "echo"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "sense"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "look"}, Decision: DecisionAllow},
			{
				Specifier: ToolSpecifier{Tool: "file_read"},
				Decision:  DecisionAllow,
				PathDeny:  []string{".env", "**/.env", "secrets/**", "**/credentials.*"},
			},
			{Specifier: ToolSpecifier{Tool: "*"}, Decision: DecisionDeny},
		},
	}
}

// PresetCoreSafe returns the "core-safe" preset.
// Default for core nodes: local work allowed, network blocked, writes
// confined to the scratch directory.
func PresetCoreSafe() Profile {
	return Profile{
		Name:        "core-safe",
		Description: "Safe default for core nodes. Local tools allowed, network blocked.",
		Sandbox:     []string{"no_net", "scratch_fs"},
		Rules: []Rule{
			{Specifier: ToolSpecifier{Tool: "echo"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "drive"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "sense"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "look"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "speak"}, Decision: DecisionAllow},
			{
				Specifier: ToolSpecifier{Tool: "file_read"},
				Decision:  DecisionAllow,
				PathDeny:  []string{".env", "**/.env", "secrets/**", "**/credentials.*"},
			},
			{Specifier: ToolSpecifier{Tool: "file_write"}, Decision: DecisionAllow},
			{
				Specifier:    ToolSpecifier{Tool: "shell_exec"},
				Decision:     DecisionAllow,
				CommandAllow: []string{"git status", "git diff", "git log", "ls", "cat", "uname", "pwd"},
			},
		},
	}
}

// PresetBrainTrusted returns the "brain-trusted" preset.
// For the planning node itself: network allowed, secrets paths still
// protected, raw network commands still denied.
func PresetBrainTrusted() Profile {
	return Profile{
		Name:        "brain-trusted",
		Description: "Trusted profile for brain nodes. Network allowed, secrets protected.",
		Sandbox:     []string{"net"},
		Rules: []Rule{
			{
				Specifier: ToolSpecifier{Tool: "file_write"},
				Decision:  DecisionDeny,
				PathAllow: []string{".env", "**/.env", "secrets/**"},
			},
			{
				Specifier: ToolSpecifier{Tool: "file_read"},
				Decision:  DecisionDeny,
				PathAllow: []string{".env", "**/.env", "secrets/**"},
			},
			{
				Specifier:    ToolSpecifier{Tool: "shell_exec"},
				Decision:     DecisionDeny,
				CommandAllow: []string{"curl", "wget", "ssh", "scp", "nc", "ncat"},
			},
			{Specifier: ToolSpecifier{Tool: "shell_exec"}, Decision: DecisionAllow},
			{Specifier: ToolSpecifier{Tool: "*"}, Decision: DecisionAllow},
		},
	}
}

// PresetNames returns the names of all built-in presets.
func PresetNames() []string {
	return []string{
		"edge-readonly",
		"core-safe",
		"brain-trusted",
	}
}

// IsPreset returns true if the given name is a built-in preset.
func IsPreset(name string) bool {
	_, ok := PresetByName(name)
	return ok
}

// PresetByName returns a preset by name, or false if not found.
func PresetByName(name string) (Profile, bool) {
	switch name {
	case "edge-readonly":
		return PresetEdgeReadonly(), true
	case "core-safe":
		return PresetCoreSafe(), true
	case "brain-trusted":
		return PresetBrainTrusted(), true
	default:
		return Profile{}, false
	}
}
