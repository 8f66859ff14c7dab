package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mikey-austin/sonic_utopia/internal/ports"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// nodePrefix marks a selector as an exact node id.
const nodePrefix = "sonic:"

// Resolver resolves selectors to player presence and configured servers.
type Resolver struct {
	Presence ports.Broker
	Config   Config
}

// ResolvePlayer resolves a player selector using config defaults.
func (r Resolver) ResolvePlayer(ctx context.Context, selector string) (sonic.Presence, error) {
	if selector == "" {
		selector = r.Config.Defaults.Player
	}

	presence, err := r.Presence.ListPresence(ctx)
	if err != nil {
		return sonic.Presence{}, ClassifyError("list presence", err)
	}

	players := filterPresenceByKind(presence, "player")
	if selector == "" {
		if len(players) == 1 {
			return players[0], nil
		}
		return sonic.Presence{}, &CLIError{Code: ExitUsage, Msg: "player selector required"}
	}
	return resolveSelector(selector, players, r.Config.Aliases)
}

// ResolveServer resolves a server selector by id, name or alias. An empty
// selector picks the configured default, or the only server.
func (r Resolver) ResolveServer(selector string) (servers.Connection, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = r.Config.Defaults.Server
	}
	if selector == "" {
		if len(r.Config.Servers) == 1 {
			return r.Config.Servers[0], nil
		}
		return servers.Connection{}, &CLIError{Code: ExitUsage, Msg: "server selector required"}
	}
	if alias, ok := r.Config.Aliases[selector]; ok {
		selector = alias
	}

	for _, conn := range r.Config.Servers {
		if conn.ID == selector {
			return conn, nil
		}
	}
	matches := make([]servers.Connection, 0)
	for _, conn := range r.Config.Servers {
		if strings.EqualFold(conn.Name, selector) || strings.EqualFold(conn.ID, selector) {
			matches = append(matches, conn)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return servers.Connection{}, WrapError(ExitNotFound, fmt.Sprintf("no server %q", selector), servers.ErrUnknownServer)
	default:
		names := make([]string, 0, len(matches))
		for _, conn := range matches {
			names = append(names, fmt.Sprintf("%s (%s)", conn.Name, conn.ID))
		}
		sort.Strings(names)
		return servers.Connection{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous server %q: %s", selector, strings.Join(names, ", "))}
	}
}

func filterPresenceByKind(presence []sonic.Presence, kind string) []sonic.Presence {
	if kind == "" {
		return presence
	}
	out := make([]sonic.Presence, 0, len(presence))
	for _, p := range presence {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func resolveSelector(selector string, presence []sonic.Presence, aliases map[string]string) (sonic.Presence, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return sonic.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}

	if strings.HasPrefix(selector, nodePrefix) {
		return resolveExact(selector, presence)
	}

	if alias, ok := aliases[selector]; ok {
		if strings.HasPrefix(alias, nodePrefix) {
			return resolveExact(alias, presence)
		}
		selector = alias
	}

	matches := make([]sonic.Presence, 0)
	for _, p := range presence {
		if strings.EqualFold(p.Name, selector) || strings.EqualFold(p.NodeID, selector) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return sonic.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no match for %q", selector)}
	}
	return sonic.Presence{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, suggestionList(matches))}
}

func resolveExact(nodeID string, presence []sonic.Presence) (sonic.Presence, error) {
	for _, p := range presence {
		if p.NodeID == nodeID {
			return p, nil
		}
	}
	return sonic.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("node not found: %s", nodeID)}
}

func suggestionList(matches []sonic.Presence) string {
	names := make([]string, 0, len(matches))
	for _, p := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.NodeID))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
