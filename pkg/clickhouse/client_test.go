package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch.local", 8123),
		WithDatabase("signalgate"),
		WithCredentials("svc", "pw"),
		WithHTTP(true),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
	} {
		opt(&cfg)
	}

	o := options(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch.local:8123" {
		t.Fatalf("addr = %v", o.Addr)
	}
	if o.Auth.Database != "signalgate" || o.Auth.Username != "svc" || o.Auth.Password != "pw" {
		t.Fatalf("auth = %+v", o.Auth)
	}
	if o.Protocol != ch.HTTP {
		t.Fatalf("protocol = %v, want HTTP", o.Protocol)
	}
	if o.Settings["max_execution_time"] != 90 {
		t.Fatalf("max_execution_time = %v", o.Settings["max_execution_time"])
	}
	if o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("async settings = %v", o.Settings)
	}
}

func TestOptionsDefaultsToNative(t *testing.T) {
	cfg := defaultConfig()
	WithAddr("localhost", 9000)(&cfg)
	o := options(cfg)
	if o.Protocol != ch.Native {
		t.Fatalf("protocol = %v, want Native", o.Protocol)
	}
	if _, ok := o.Settings["async_insert"]; ok {
		t.Fatalf("async_insert must be unset by default")
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
