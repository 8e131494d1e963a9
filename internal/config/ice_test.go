package config

import "testing"

func TestParseICEServersJSON(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478", "turns:turn.example.com:5349"], "username": "u", "credential": "c"}
	]`
	servers, err := ParseICEServersJSON(raw, false)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers: got %d", len(servers))
	}
	if len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("stun entry: %+v", servers[0])
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "u" {
		t.Errorf("turn entry: %+v", servers[1])
	}
	if cred, ok := servers[1].Credential.(string); !ok || cred != "c" {
		t.Errorf("turn credential: %+v", servers[1].Credential)
	}
}

func TestParseICEServersJSONRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `nope`},
		{"bad scheme", `[{"urls": "http://example.com"}]`},
		{"empty urls", `[{"urls": []}]`},
		{"turn without username", `[{"urls": "turn:t.example.com:3478", "credential": "c"}]`},
		{"turn without credential", `[{"urls": "turn:t.example.com:3478", "username": "u"}]`},
	}
	for _, tc := range cases {
		if _, err := ParseICEServersJSON(tc.raw, false); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestParseICEServersJSONTURNRESTRelaxesCredentials(t *testing.T) {
	raw := `[{"urls": "turn:t.example.com:3478"}]`
	if _, err := ParseICEServersJSON(raw, true); err != nil {
		t.Fatalf("ParseICEServersJSON with rest enabled: %v", err)
	}
}

func TestParseICEFromConvenienceValues(t *testing.T) {
	_, stun, turn, err := parseICEFromValues("", "stun:a.example.com:3478, stun:b.example.com:3478", "turn:t.example.com:3478", "u", "c", false)
	if err != nil {
		t.Fatalf("parseICEFromValues: %v", err)
	}
	if len(stun) != 2 || len(turn) != 1 {
		t.Fatalf("lists: stun=%v turn=%v", stun, turn)
	}
}

func TestParseICEFromValuesJSONWins(t *testing.T) {
	static, stun, turn, err := parseICEFromValues(`[{"urls": "stun:x.example.com:3478"}]`, "stun:ignored.example.com:3478", "", "", "", false)
	if err != nil {
		t.Fatalf("parseICEFromValues: %v", err)
	}
	if len(static) != 1 || stun != nil || turn != nil {
		t.Fatalf("static=%v stun=%v turn=%v", static, stun, turn)
	}
}
