package origin

import "testing"

func TestIsAllowedAbsentOrigin(t *testing.T) {
	patterns := [][]string{
		{"https://example.com"},
		{"https://a.com", "https://b.com"},
		{"https://only.example"},
	}
	for _, set := range patterns {
		if !IsAllowed("", set) {
			t.Fatalf("absent origin should be allowed for %v", set)
		}
		if !IsAllowed("   ", set) {
			t.Fatalf("blank origin should be allowed for %v", set)
		}
	}
}

func TestIsAllowedExactMatch(t *testing.T) {
	patterns := []string{"https://demo.app", "http://localhost:5173"}

	if !IsAllowed("https://demo.app", patterns) {
		t.Fatal("exact origin should match")
	}
	if !IsAllowed("http://localhost:5173", patterns) {
		t.Fatal("exact origin with port should match")
	}
	if IsAllowed("https://evil.com", patterns) {
		t.Fatal("unlisted origin should be denied")
	}
	if IsAllowed("https://demo.app.evil.com", patterns) {
		t.Fatal("superstring origin should be denied")
	}
}

func TestIsAllowedWildcardSuffix(t *testing.T) {
	patterns := []string{"https://preview-*", "https://*"}

	if !IsAllowed("https://preview-42.example.com", []string{"https://preview-*"}) {
		t.Fatal("prefix wildcard should match")
	}
	if IsAllowed("http://preview-42.example.com", []string{"https://preview-*"}) {
		t.Fatal("scheme mismatch should not match prefix wildcard")
	}
	if !IsAllowed("https://anything.example", patterns) {
		t.Fatal("https:// prefix wildcard should match any https origin")
	}
}

func TestIsAllowedBareWildcardPattern(t *testing.T) {
	// A sole "*" is rejected at registry level, but it can legally coexist
	// with other patterns and then matches everything.
	if !IsAllowed("https://whatever.example", []string{"https://a.com", "*"}) {
		t.Fatal("* pattern should match any origin")
	}
}

func TestIsAllowedNormalizesFullURLs(t *testing.T) {
	patterns := []string{"https://demo.app"}

	// Referer-style values carry a path; they normalize to scheme+host.
	if !IsAllowed("https://demo.app/checkout?step=2", patterns) {
		t.Fatal("URL with path should normalize and match")
	}
	if !IsAllowed("https://demo.app/", patterns) {
		t.Fatal("URL with trailing slash should normalize and match")
	}
	if IsAllowed("https://evil.com/https://demo.app", patterns) {
		t.Fatal("path content must not influence the match")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://demo.app", "https://demo.app"},
		{"https://demo.app/path/x?q=1#f", "https://demo.app"},
		{"http://localhost:5173/index.html", "http://localhost:5173"},
		{"not a url", "not a url"},
		{"  https://demo.app  ", "https://demo.app"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsAllowedDeterministic(t *testing.T) {
	patterns := []string{"https://a.com", "https://b-*"}
	for i := 0; i < 100; i++ {
		if !IsAllowed("https://b-7.example", patterns) {
			t.Fatal("result should not vary across calls")
		}
		if IsAllowed("https://c.com", patterns) {
			t.Fatal("result should not vary across calls")
		}
	}
}
