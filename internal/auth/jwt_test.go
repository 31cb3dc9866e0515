package auth

import "testing"

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("s3cret", "nino", "alice")
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	user, err := VerifyJWT("s3cret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if user != "alice" {
		t.Fatalf("got user %q, want alice", user)
	}
}

func TestVerifyJWTWrongSecret(t *testing.T) {
	token, err := SignJWT("s3cret", "nino", "alice")
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	if _, err := VerifyJWT("wrong", token); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "hunter2") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected wrong password to fail verification")
	}
}
