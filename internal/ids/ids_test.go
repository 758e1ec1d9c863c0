package ids

import "testing"

func TestPointIDDeterministic(t *testing.T) {
	t.Parallel()

	hash := "deadbeef"
	a := PointID(hash)
	b := PointID(hash)
	if a != b {
		t.Fatalf("PointID not pure: %q != %q", a, b)
	}
}

func TestPointIDDiffersByHash(t *testing.T) {
	t.Parallel()

	a := PointID("aaa")
	b := PointID("bbb")
	if a == b {
		t.Fatalf("expected different point ids for different chunk hashes")
	}
}

func TestNewOpaqueIDUnique(t *testing.T) {
	t.Parallel()

	a := NewOpaqueID()
	b := NewOpaqueID()
	if a == b {
		t.Fatalf("expected distinct opaque ids")
	}
}
