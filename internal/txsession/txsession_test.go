package txsession

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"nino/internal/domain"
)

func TestCreateTransactionDisambiguation(t *testing.T) {
	st := &sessionState{
		aliasInfo: map[string]domain.AliasInfo{
			domain.MainAlias: {Alias: domain.MainAlias, Kind: domain.AliasPostgres, ConnectionString: "postgres://main"},
			"x":              {Alias: "x", Kind: domain.AliasPostgres, ConnectionString: "postgres://x"},
		},
		aliasesUsed: make(map[string]string),
		pool:        make(map[string]*txWorkerHandle),
		pools:       make(map[string]*pgxpool.Pool),
	}
	ctx := context.Background()

	first, err := st.createTransaction(ctx, "x")
	if err != nil {
		t.Fatalf("first createTransaction: %v", err)
	}
	if first != "x" {
		t.Fatalf("expected canonical name 'x' on first use, got %q", first)
	}

	second, err := st.createTransaction(ctx, "x")
	if err != nil {
		t.Fatalf("second createTransaction: %v", err)
	}
	if second == first {
		t.Fatalf("expected a distinct canonical name on repeated use, got %q both times", second)
	}
	if second != "x_1" {
		t.Fatalf("expected canonical name x_1, got %q", second)
	}
}

func TestCreateTransactionUnknownAlias(t *testing.T) {
	st := &sessionState{
		aliasInfo:   map[string]domain.AliasInfo{domain.MainAlias: {Alias: domain.MainAlias, Kind: domain.AliasPostgres}},
		aliasesUsed: make(map[string]string),
		pool:        make(map[string]*txWorkerHandle),
	}
	if _, err := st.createTransaction(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown alias")
	}
}

func TestParamsToArgs(t *testing.T) {
	params := []domain.QueryParam{
		{Kind: domain.ParamNull},
		{Kind: domain.ParamString, String: "hello"},
		{Kind: domain.ParamNumber, Number: 42},
	}
	args := paramsToArgs(params)
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != nil {
		t.Fatalf("expected nil for Null param, got %v", args[0])
	}
	if args[1] != "hello" {
		t.Fatalf("expected 'hello', got %v", args[1])
	}
	if args[2] != int64(42) {
		t.Fatalf("expected int64(42), got %v", args[2])
	}
}
