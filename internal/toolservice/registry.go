package toolservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emcie-io/agentrt/internal/store"
)

// Kind is a persisted service registration's transport kind.
type Kind string

const (
	KindLocal   Kind = "local"
	KindSDK     Kind = "sdk"
	KindOpenAPI Kind = "openapi"
)

// Registration is a persistent ToolServiceRegistration (spec.md §3).
type Registration struct {
	Name   string
	Kind   Kind
	URL    string // sdk, openapi
	Source []byte // openapi: raw OpenAPI JSON
}

const registrationCollection = "tool_service_registrations"

// ErrServiceNotFound indicates no registration exists with the given name.
var ErrServiceNotFound = errors.New("tool service not found")

// Registry resolves a service name to a live ToolService, instantiating
// clients lazily and persisting registrations (spec.md §4.6). Grounded on
// the read-mostly map + exclusive-mutation-lock discipline of
// runtime/registry/manager.go's Manager (sync.RWMutex guarding a
// map[string]*registryEntry); here the map holds instantiated ToolService
// clients rather than registry clients, matching spec.md §3's ownership
// note: "the registry owns Service registrations but not the live Tool
// clients, whose lifetime matches the process."
type Registry struct {
	db store.Database

	mu       sync.RWMutex
	services map[string]ToolService
	local    *LocalService
}

// NewRegistry constructs a Registry persisting registrations into db. The
// built-in "local" service is always present and backed by local.
func NewRegistry(db store.Database, local *LocalService) *Registry {
	r := &Registry{db: db, services: make(map[string]ToolService), local: local}
	r.services[LocalServiceName] = local
	return r
}

// UpdateService registers (or replaces) a service and instantiates its
// client eagerly so subsequent Resolve calls never race construction.
func (r *Registry) UpdateService(ctx context.Context, reg Registration) error {
	client, err := r.instantiate(reg)
	if err != nil {
		return err
	}
	coll, err := r.db.Collection(ctx, registrationCollection)
	if err != nil {
		return fmt.Errorf("open tool service registrations collection: %w", err)
	}
	doc := store.Document{
		"id":         reg.Name,
		"name":       reg.Name,
		"kind":       string(reg.Kind),
		"url":        reg.URL,
		"source":     string(reg.Source),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := coll.Find(ctx, reg.Name); errors.Is(err, store.ErrNotFound) {
		err = coll.Insert(ctx, doc)
	} else {
		err = coll.Update(ctx, reg.Name, doc)
	}
	if err != nil {
		return fmt.Errorf("persist tool service registration: %w", err)
	}
	r.mu.Lock()
	r.services[reg.Name] = client
	r.mu.Unlock()
	return nil
}

// ReadService returns the persisted registration for name.
func (r *Registry) ReadService(ctx context.Context, name string) (Registration, error) {
	coll, err := r.db.Collection(ctx, registrationCollection)
	if err != nil {
		return Registration{}, fmt.Errorf("open tool service registrations collection: %w", err)
	}
	doc, err := coll.Find(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Registration{}, ErrServiceNotFound
		}
		return Registration{}, err
	}
	return registrationFromDocument(doc), nil
}

// ListServices returns every persisted registration.
func (r *Registry) ListServices(ctx context.Context) ([]Registration, error) {
	coll, err := r.db.Collection(ctx, registrationCollection)
	if err != nil {
		return nil, fmt.Errorf("open tool service registrations collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]Registration, 0, len(docs))
	for _, d := range docs {
		out = append(out, registrationFromDocument(d))
	}
	return out, nil
}

// DeleteService removes a registration and its live client.
func (r *Registry) DeleteService(ctx context.Context, name string) error {
	if name == LocalServiceName {
		return fmt.Errorf("cannot delete reserved service %q", LocalServiceName)
	}
	coll, err := r.db.Collection(ctx, registrationCollection)
	if err != nil {
		return fmt.Errorf("open tool service registrations collection: %w", err)
	}
	if err := coll.Delete(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrServiceNotFound
		}
		return err
	}
	r.mu.Lock()
	delete(r.services, name)
	r.mu.Unlock()
	return nil
}

// Resolve returns the live ToolService for serviceName.
func (r *Registry) Resolve(_ context.Context, serviceName string) (ToolService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[serviceName]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

func (r *Registry) instantiate(reg Registration) (ToolService, error) {
	switch reg.Kind {
	case KindLocal:
		return r.local, nil
	case KindSDK:
		return NewSDKService(reg.URL), nil
	case KindOpenAPI:
		return NewOpenAPIService(reg.URL, reg.Source)
	default:
		return nil, fmt.Errorf("unknown tool service kind %q", reg.Kind)
	}
}

func registrationFromDocument(doc store.Document) Registration {
	source, _ := doc["source"].(string)
	return Registration{
		Name:   asStr(doc["name"]),
		Kind:   Kind(asStr(doc["kind"])),
		URL:    asStr(doc["url"]),
		Source: []byte(source),
	}
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}
