// Package servers tracks configured Subsonic server connections and which one
// is active. Every change to the active binding bumps a generation counter so
// in-flight work started against an older binding can detect it is stale.
package servers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mikey-austin/sonic_utopia/internal/observe"
)

// ErrNoActiveServer indicates no server is configured or selected.
var ErrNoActiveServer = errors.New("no active server")

// ErrUnknownServer indicates a server id that is not registered.
var ErrUnknownServer = errors.New("unknown server")

// Connection describes one configured server account.
type Connection struct {
	ID       string `json:"id" toml:"id"`
	Name     string `json:"name,omitempty" toml:"name"`
	BaseURL  string `json:"baseUrl" toml:"url"`
	Username string `json:"username" toml:"username"`
	Password string `json:"-" toml:"password"`
}

// Validate checks required connection fields.
func (c Connection) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("server id required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("server %s: url required", c.ID)
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("server %s: username required", c.ID)
	}
	return nil
}

// Binding pairs the active connection with the generation it was bound at.
// A zero Connection.ID means no server is active.
type Binding struct {
	Connection Connection
	Generation uint64
}

// Active reports whether the binding points at a server.
func (b Binding) Active() bool {
	return b.Connection.ID != ""
}

// Registry owns the connection set and the active pointer.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]Connection
	order  []string
	gen    atomic.Uint64
	active atomic.Pointer[Binding]
	watch  *observe.Holder[Binding]
}

// NewRegistry creates a registry holding conns with nothing active.
func NewRegistry(conns ...Connection) (*Registry, error) {
	r := &Registry{
		conns: map[string]Connection{},
		watch: observe.NewHolder(Binding{}),
	}
	r.active.Store(&Binding{})
	for _, conn := range conns {
		if err := r.Add(conn); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers or replaces a connection. Replacing the active connection
// rebinds it under a new generation.
func (r *Registry) Add(conn Connection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	conn.BaseURL = strings.TrimRight(strings.TrimSpace(conn.BaseURL), "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		r.order = append(r.order, conn.ID)
	}
	r.conns[conn.ID] = conn
	if r.active.Load().Connection.ID == conn.ID {
		r.bindLocked(conn)
	}
	return nil
}

// Remove deletes a connection. Removing the active one leaves nothing active.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	delete(r.conns, id)
	filtered := r.order[:0]
	for _, existing := range r.order {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	r.order = filtered
	if r.active.Load().Connection.ID == id {
		r.bindLocked(Connection{})
	}
	return nil
}

// SetActive switches the active server. Selecting the already active server
// keeps the current generation.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	if r.active.Load().Connection == conn {
		return nil
	}
	r.bindLocked(conn)
	return nil
}

// Active returns the active connection.
func (r *Registry) Active() (Connection, error) {
	binding := r.Binding()
	if !binding.Active() {
		return Connection{}, ErrNoActiveServer
	}
	return binding.Connection, nil
}

// Binding returns the active connection together with its generation.
func (r *Registry) Binding() Binding {
	return *r.active.Load()
}

// Generation returns the current binding generation.
func (r *Registry) Generation() uint64 {
	return r.active.Load().Generation
}

// Get returns a registered connection by id.
func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// List returns connections in registration order.
func (r *Registry) List() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Connection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id])
	}
	return out
}

// Watch exposes binding changes.
func (r *Registry) Watch() *observe.Holder[Binding] {
	return r.watch
}

func (r *Registry) bindLocked(conn Connection) {
	binding := &Binding{Connection: conn, Generation: r.gen.Add(1)}
	r.active.Store(binding)
	r.watch.Set(*binding)
}
