package mongo

import (
	"context"
	"testing"
	"time"
)

func TestConnect_InvalidURI(t *testing.T) {
	_, _, err := Connect(context.Background(), Config{URI: "not-a-mongo-uri", Database: "x", Timeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected an error for an invalid URI")
	}
}
