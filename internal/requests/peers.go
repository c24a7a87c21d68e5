package requests

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/fieldserve/fieldserve/internal/platform/peer"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Breaker targets, one per peer service.
const (
	TargetCatalog       = "catalog"
	TargetTechnicians   = "technicians"
	TargetNotifications = "notifications"
)

// Peers is what the service needs from the other services. Lookups report
// downstream 4xx responses as *resilience.StatusError.
type Peers interface {
	// Item never fails on an unreachable catalog; it returns an unverified item.
	Item(ctx context.Context, caller trust.RequestIdentity, id string) (Item, error)
	// Technician fails with resilience.ErrUpstreamUnavailable when the roster
	// cannot be reached.
	Technician(ctx context.Context, caller trust.RequestIdentity, id string) (Technician, error)
	// TechnicianSummary returns an unverified technician instead of failing.
	TechnicianSummary(ctx context.Context, caller trust.RequestIdentity, id string) (Technician, error)
	// Notify is best effort.
	Notify(ctx context.Context, caller trust.RequestIdentity, n Notification)
	Snapshots() []resilience.Snapshot
}

type lookup struct {
	caller trust.RequestIdentity
	id     string
}

type delivery struct {
	caller       trust.RequestIdentity
	notification Notification
}

// PeerClients implements Peers over HTTP with one breaker per target.
type PeerClients struct {
	registry *resilience.Registry
	logger   *slog.Logger

	item              resilience.Call[lookup, Item]
	technician        resilience.Call[lookup, Technician]
	technicianSummary resilience.Call[lookup, Technician]
	notify            resilience.Call[delivery, struct{}]
}

// NewPeerClients protects the three peer clients with registry.
func NewPeerClients(registry *resilience.Registry, catalog, technicians, notifications *peer.Client, logger *slog.Logger) *PeerClients {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &PeerClients{registry: registry, logger: logger}

	fetchItem := func(ctx context.Context, in lookup) (Item, error) {
		var item Item
		if err := catalog.GetJSON(ctx, "/api/catalog/"+url.PathEscape(in.id), in.caller, &item); err != nil {
			return Item{}, err
		}
		item.Verified = true
		return item, nil
	}
	fetchTechnician := func(ctx context.Context, in lookup) (Technician, error) {
		var tech Technician
		if err := technicians.GetJSON(ctx, "/api/technicians/"+url.PathEscape(in.id), in.caller, &tech); err != nil {
			return Technician{}, err
		}
		tech.Verified = true
		return tech, nil
	}
	send := func(ctx context.Context, in delivery) (struct{}, error) {
		return struct{}{}, notifications.PostJSON(ctx, "/api/notifications", in.caller, in.notification, nil)
	}

	p.item = resilience.Protect(registry, TargetCatalog, fetchItem,
		func(_ context.Context, in lookup, cause error) (Item, error) {
			p.logger.Warn("catalog lookup degraded", slog.String("item_id", in.id), slog.Any("cause", cause))
			return Item{ID: in.id}, nil
		})
	p.technician = resilience.Protect(registry, TargetTechnicians, fetchTechnician, nil)
	p.technicianSummary = resilience.Protect(registry, TargetTechnicians, fetchTechnician,
		func(_ context.Context, in lookup, cause error) (Technician, error) {
			p.logger.Warn("technician lookup degraded", slog.String("technician_id", in.id), slog.Any("cause", cause))
			return Technician{ID: in.id}, nil
		})
	p.notify = resilience.Protect(registry, TargetNotifications, send,
		func(_ context.Context, in delivery, cause error) (struct{}, error) {
			p.logger.Warn("notification dropped",
				slog.String("recipient", in.notification.RecipientUserID),
				slog.String("reference_id", in.notification.ReferenceID),
				slog.Any("cause", cause))
			return struct{}{}, nil
		})
	return p
}

func (p *PeerClients) Item(ctx context.Context, caller trust.RequestIdentity, id string) (Item, error) {
	return p.item(ctx, lookup{caller: caller, id: id})
}

func (p *PeerClients) Technician(ctx context.Context, caller trust.RequestIdentity, id string) (Technician, error) {
	return p.technician(ctx, lookup{caller: caller, id: id})
}

func (p *PeerClients) TechnicianSummary(ctx context.Context, caller trust.RequestIdentity, id string) (Technician, error) {
	return p.technicianSummary(ctx, lookup{caller: caller, id: id})
}

func (p *PeerClients) Notify(ctx context.Context, caller trust.RequestIdentity, n Notification) {
	if _, err := p.notify(ctx, delivery{caller: caller, notification: n}); err != nil {
		// Only caller cancellation and 4xx replies get here.
		p.logger.Warn("notification not accepted",
			slog.String("recipient", n.RecipientUserID),
			slog.Any("error", err))
	}
}

func (p *PeerClients) Snapshots() []resilience.Snapshot {
	return p.registry.Snapshots()
}
