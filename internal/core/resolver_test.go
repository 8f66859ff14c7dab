package core

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

type fakeBroker struct {
	presence []sonic.Presence
}

func (f fakeBroker) Call(ctx context.Context, nodeID string, cmd sonic.CommandEnvelope, out any) error {
	return nil
}
func (f fakeBroker) ListPresence(ctx context.Context) ([]sonic.Presence, error) { return f.presence, nil }
func (f fakeBroker) GetPlayerState(ctx context.Context, nodeID string) (sonic.PlayerState, error) {
	return sonic.PlayerState{}, nil
}
func (f fakeBroker) WatchPlayer(ctx context.Context, nodeID string) (<-chan sonic.PlayerState, <-chan sonic.SessionEvent, <-chan error) {
	stateCh := make(chan sonic.PlayerState)
	eventCh := make(chan sonic.SessionEvent)
	errCh := make(chan error)
	close(stateCh)
	close(eventCh)
	close(errCh)
	return stateCh, eventCh, errCh
}

func TestResolverAlias(t *testing.T) {
	presence := []sonic.Presence{{NodeID: "sonic:player:one", Kind: "player", Name: "Living Room"}}
	resolver := Resolver{
		Presence: fakeBroker{presence: presence},
		Config: Config{
			Aliases: map[string]string{"livingroom": "sonic:player:one"},
		},
	}
	got, err := resolver.ResolvePlayer(context.Background(), "livingroom")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.NodeID != "sonic:player:one" {
		t.Fatalf("expected alias resolution")
	}
}

func TestResolverAmbiguous(t *testing.T) {
	presence := []sonic.Presence{
		{NodeID: "sonic:player:one", Kind: "player", Name: "Living Room"},
		{NodeID: "sonic:player:two", Kind: "player", Name: "Living Room"},
	}
	resolver := Resolver{Presence: fakeBroker{presence: presence}}
	_, err := resolver.ResolvePlayer(context.Background(), "Living Room")
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
}

func TestResolverSinglePlayerDefault(t *testing.T) {
	presence := []sonic.Presence{
		{NodeID: "sonic:player:one", Kind: "player", Name: "Kitchen"},
		{NodeID: "sonic:other:x", Kind: "other", Name: "Other"},
	}
	resolver := Resolver{Presence: fakeBroker{presence: presence}}
	got, err := resolver.ResolvePlayer(context.Background(), "")
	if err != nil || got.Name != "Kitchen" {
		t.Fatalf("expected only player picked, got %+v (%v)", got, err)
	}
}

func TestResolveServer(t *testing.T) {
	resolver := Resolver{Config: Config{
		Servers: []servers.Connection{
			{ID: "home", Name: "Home", BaseURL: "http://h", Username: "a"},
			{ID: "work", Name: "Office", BaseURL: "http://w", Username: "b"},
		},
		Aliases:  map[string]string{"o": "work"},
		Defaults: Defaults{Server: "home"},
	}}

	if conn, err := resolver.ResolveServer(""); err != nil || conn.ID != "home" {
		t.Fatalf("expected default server, got %+v (%v)", conn, err)
	}
	if conn, err := resolver.ResolveServer("office"); err != nil || conn.ID != "work" {
		t.Fatalf("expected name match, got %+v (%v)", conn, err)
	}
	if conn, err := resolver.ResolveServer("o"); err != nil || conn.ID != "work" {
		t.Fatalf("expected alias match, got %+v (%v)", conn, err)
	}
	_, err := resolver.ResolveServer("nope")
	if ExitCode(err) != ExitNotFound || !errors.Is(err, servers.ErrUnknownServer) {
		t.Fatalf("expected not found, got %v", err)
	}
}
