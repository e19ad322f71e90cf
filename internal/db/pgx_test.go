package db

import (
	"context"
	"testing"
)

func TestOpenRejectsMalformedURL(t *testing.T) {
	if _, err := Open(context.Background(), "not a postgres url"); err == nil {
		t.Fatal("expected an error for a malformed database url")
	}
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected an error when no pool is configured")
	}
}
