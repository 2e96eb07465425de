package types

import "testing"

func TestCallerVariants(t *testing.T) {
	anon := Anonymous()
	if anon.IsAuthenticated() || anon.IsPro() || anon.IsUltra() {
		t.Errorf("Anonymous() = %+v", anon)
	}

	var zero Caller
	if zero != anon {
		t.Error("zero Caller should equal Anonymous()")
	}

	if Authenticated("", true, true) != anon {
		t.Error("empty user id should degrade to Anonymous")
	}

	free := Authenticated("u1", false, false)
	if !free.IsAuthenticated() || free.IsPro() || free.UserID() != "u1" {
		t.Errorf("free caller = %+v", free)
	}
}

func TestCallerUltraImpliesPro(t *testing.T) {
	c := Authenticated("u1", false, true)
	if !c.IsPro() || !c.IsUltra() {
		t.Errorf("ultra caller should also be pro: %+v", c)
	}
}

func TestCallerFromEntitlement(t *testing.T) {
	if CallerFromEntitlement(nil).IsAuthenticated() {
		t.Error("nil entitlement should be anonymous")
	}
	c := CallerFromEntitlement(&Entitlement{UserID: "u1", IsUltraUser: true})
	if c.UserID() != "u1" || !c.IsPro() {
		t.Errorf("caller = %+v", c)
	}
}
