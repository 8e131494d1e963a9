package origin

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in             string
		wantNormalized string
		wantHost       string
		wantOK         bool
	}{
		{"https://example.com", "https://example.com", "example.com", true},
		{"https://Example.COM", "https://example.com", "example.com", true},
		{"http://example.com:80", "http://example.com", "example.com", true},
		{"https://example.com:443", "https://example.com", "example.com", true},
		{"https://example.com:8443", "https://example.com:8443", "example.com:8443", true},
		{"http://[::1]:3000", "http://[::1]:3000", "[::1]:3000", true},
		{"null", "null", "", true},
		{"  https://example.com  ", "https://example.com", "example.com", true},
		{"", "", "", false},
		{"example.com", "", "", false},
		{"ftp://example.com", "", "", false},
		{"https://example.com/path", "", "", false},
		{"https://user@example.com", "", "", false},
		{"https://example.com?q=1", "", "", false},
		{"https://example.com:0", "", "", false},
		{"https://example.com:99999", "", "", false},
	}

	for _, tc := range cases {
		normalized, host, ok := Normalize(tc.in)
		if ok != tc.wantOK || normalized != tc.wantNormalized || host != tc.wantHost {
			t.Errorf("Normalize(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, normalized, host, ok, tc.wantNormalized, tc.wantHost, tc.wantOK)
		}
	}
}

func TestAllowed_Allowlist(t *testing.T) {
	allow := []string{"https://app.example.com"}

	if !Allowed("https://app.example.com", "app.example.com", "relay.internal:8080", allow) {
		t.Fatalf("allowlisted origin rejected")
	}
	if Allowed("https://evil.example.com", "evil.example.com", "relay.internal:8080", allow) {
		t.Fatalf("non-allowlisted origin accepted")
	}
	if !Allowed("https://anything.example", "anything.example", "x", []string{"*"}) {
		t.Fatalf("wildcard allowlist rejected origin")
	}
}

func TestAllowed_SameHostDefault(t *testing.T) {
	if !Allowed("https://example.com", "example.com", "example.com", nil) {
		t.Fatalf("same host rejected")
	}
	// Default port on the request side is treated as equivalent.
	if !Allowed("https://example.com", "example.com", "example.com:443", nil) {
		t.Fatalf("default-port request host rejected")
	}
	if Allowed("https://other.com", "other.com", "example.com", nil) {
		t.Fatalf("cross-host origin accepted")
	}
	if Allowed("null", "", "example.com", nil) {
		t.Fatalf("null origin accepted under same-host policy")
	}
}
