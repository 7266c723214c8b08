package session

import (
	"errors"
	"testing"
)

func TestStore_SignInSignOut(t *testing.T) {
	s := New()
	if s.Session() != nil {
		t.Fatal("new store should be signed out")
	}
	if _, err := s.Token(); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Token() error = %v, want ErrSignedOut", err)
	}

	s.SignIn(Identity{UserID: "u1", Email: "a@example.com", Token: "tok"})
	got := s.Session()
	if got == nil || got.UserID != "u1" {
		t.Fatalf("Session() = %+v", got)
	}
	got.UserID = "mutated"
	if s.Session().UserID != "u1" {
		t.Error("Session() should return a copy")
	}

	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if tok.AccessToken != "tok" || tok.Type() != "Bearer" {
		t.Errorf("Token() = %+v", tok)
	}

	s.SignOut()
	if s.Session() != nil {
		t.Error("expected signed out")
	}
}

func TestStore_Listeners(t *testing.T) {
	s := New()
	var order []string
	stopA := s.OnAuthStateChange(func(id *Identity) {
		if id == nil {
			order = append(order, "a:out")
			return
		}
		order = append(order, "a:"+id.UserID)
	})
	s.OnAuthStateChange(func(id *Identity) {
		if id != nil {
			order = append(order, "b:"+id.UserID)
		}
	})

	s.SignIn(Identity{UserID: "u1"})
	stopA()
	stopA()
	s.SignOut()
	s.SignIn(Identity{UserID: "u2"})

	want := []string{"a:u1", "b:u1", "b:u2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}
