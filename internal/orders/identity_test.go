package orders

import (
	"errors"
	"testing"
)

func TestResolveKeepsProducerID(t *testing.T) {
	r := &Resolver{NewID: func() string { t.Fatal("should not mint"); return "" }}
	o, err := r.Resolve(Order{ID: "A"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if o.ID != "A" {
		t.Fatalf("id = %q", o.ID)
	}
}

func TestResolveMintsMissingID(t *testing.T) {
	r := &Resolver{NewID: func() string { return "minted" }}
	o, err := r.Resolve(Order{FullName: "x"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if o.ID != "minted" || o.FullName != "x" {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestResolveDefaultGeneratorIsUnique(t *testing.T) {
	r := NewResolver(false)
	a, _ := r.Resolve(Order{})
	b, _ := r.Resolve(Order{})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected two distinct ids, got %q and %q", a.ID, b.ID)
	}
}

func TestResolveRequireIdentity(t *testing.T) {
	r := NewResolver(true)
	_, err := r.Resolve(Order{})
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}
