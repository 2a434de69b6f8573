package token

import "testing"

// Test looking up values succeeds for every keyword, then falls back to
// IDENT for anything else.
func TestLookup(t *testing.T) {
	for key, val := range keywords {
		if LookupIdentifier(key) != val {
			t.Errorf("lookup of %s failed", key)
		}
	}

	if LookupIdentifier("not_a_keyword") != IDENT {
		t.Errorf("expected a non-keyword to resolve to IDENT")
	}
}

func TestIsNode(t *testing.T) {
	nodeKinds := []Kind{IDENT, NUMBER, STRING, TRUE, FALSE}
	for _, k := range nodeKinds {
		if !k.IsNode() {
			t.Errorf("expected %s.IsNode() to be true", k)
		}
	}

	nonNodeKinds := []Kind{PLUS, LET, EOF, LPAREN}
	for _, k := range nonNodeKinds {
		if k.IsNode() {
			t.Errorf("expected %s.IsNode() to be false", k)
		}
	}
}
