package permset

import "testing"

// TestMonotonicity checks the grant/revoke/deny laws.
func TestMonotonicity(t *testing.T) {
	var s Set
	if !s.Grant(FileRead).Has(FileRead) {
		t.Fatal("grant(p).has(p) must be true")
	}
	if s.Grant(FileRead).Revoke(FileRead).Has(FileRead) {
		t.Fatal("revoke(p).has(p) must be false")
	}
	if s.Grant(FileRead).Deny(FileRead).Has(FileRead) {
		t.Fatal("deny(p).has(p) must be false even after grant")
	}
}

func TestIdempotence(t *testing.T) {
	var s Set
	g1 := s.Grant(FileRead)
	g2 := g1.Grant(FileRead)
	if g1 != g2 {
		t.Fatalf("grant is not idempotent: %+v != %+v", g1, g2)
	}
	r1 := g1.Revoke(FileRead)
	r2 := r1.Revoke(FileRead)
	if r1 != r2 {
		t.Fatalf("revoke is not idempotent: %+v != %+v", r1, r2)
	}
}

func TestDenialWins(t *testing.T) {
	s := NewSet(Full, 0)
	s = s.Grant(Camera)
	s = s.Deny(Camera)
	if s.Has(Camera) {
		t.Fatal("deny must win regardless of prior grants")
	}
	// A further grant attempt via the value type itself always wins
	// locally (policy-level refusal lives in the permission manager),
	// but the ending state of this specific sequence must deny.
	s2 := s
	if s2.Has(Camera) {
		t.Fatal("denied set must remain denied when unchanged")
	}
}

func TestMissing(t *testing.T) {
	s := NewSet(Basic, 0)
	missing := s.Missing(FileWrite | FileRead)
	if missing != FileWrite {
		t.Fatalf("expected missing=FileWrite, got %v", missing.Names())
	}
}

func TestStripPrivileged(t *testing.T) {
	p := StripPrivileged(Full | Admin | Kernel)
	if p&Admin != 0 || p&Kernel != 0 {
		t.Fatal("Admin/Kernel must never survive StripPrivileged")
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	p, ok := Parse("filewrite")
	if !ok || p != FileWrite {
		t.Fatalf("expected FileWrite, got %v ok=%v", p, ok)
	}
	if _, ok := Parse("NotARealPermission"); ok {
		t.Fatal("unknown permission name must not resolve")
	}
}

func TestFullExcludesPrivileged(t *testing.T) {
	if Full&Admin != 0 || Full&Kernel != 0 {
		t.Fatal("Full must never include Admin or Kernel")
	}
}
