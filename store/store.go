// Package store é o contrato chave-valor persistente (fonte da verdade) e seus
// backends: Redis (padrão), Postgres e memória (testes/desenvolvimento).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNil indica chave ausente (ou expirada).
var ErrNil = errors.New("store: key not found")

type SetOptions struct {
	// NX: só grava se a chave não existir (criação condicional atômica).
	NX bool
	// TTL > 0 faz a chave expirar.
	TTL time.Duration
}

type OpKind int

const (
	OpGet OpKind = iota
	OpIncr
	OpExists
)

type Op struct {
	Kind OpKind
	Key  string
}

func Get(key string) Op    { return Op{Kind: OpGet, Key: key} }
func Incr(key string) Op   { return Op{Kind: OpIncr, Key: key} }
func Exists(key string) Op { return Op{Kind: OpExists, Key: key} }

// Result de uma operação do pipeline. Found=false em OpGet equivale a ErrNil.
type Result struct {
	Value string
	Int   int64
	Found bool
}

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set devolve false quando NX e a chave já existia.
	Set(ctx context.Context, key, value string, opts SetOptions) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	// Pipeline executa as operações num único round trip, na ordem recebida.
	Pipeline(ctx context.Context, ops ...Op) ([]Result, error)
	Ping(ctx context.Context) error
	Close() error
}
