package service

import (
	"context"
	"errors"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/storage"
)

// NewConfigService builds the config endpoint. It serves stored
// resource documents by type and identifier and requires no
// authentication.
func NewConfigService(bus *events.EventBus, store storage.Store) *Service {
	s := NewService("config", bus)
	s.NoAuth()
	s.Handle(protocol.SymConfigRequest, configHandler(s, store))
	return s
}

func configHandler(s *Service, store storage.Store) HandlerFunc {
	return func(ctx context.Context, peer *Peer, msg protocol.Message) error {
		req := msg.(*protocol.ConfigRequest)

		resource, ok := configResource(store, req.Type)
		if !ok {
			return peer.Send(&protocol.ConfigFailure{
				Type:       req.Type,
				Identifier: req.Identifier,
				Reason:     "unknown resource type",
			})
		}

		key := req.Identifier
		if key == "" {
			key = storage.SingletonKey
		}
		doc, err := resource.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			return peer.Send(&protocol.ConfigFailure{
				Type:       req.Type,
				Identifier: req.Identifier,
				Reason:     "resource not found",
			})
		}
		if err != nil {
			s.log.Error().Err(err).Str("type", req.Type).Str("id", req.Identifier).Msg("Config load failed")
			return peer.Send(&protocol.ConfigFailure{
				Type:       req.Type,
				Identifier: req.Identifier,
				Reason:     "internal error",
			})
		}
		return peer.Send(&protocol.ConfigSuccess{
			Type:       req.Type,
			Identifier: req.Identifier,
			Document:   doc,
		})
	}
}

func configResource(store storage.Store, resourceType string) (storage.Resource, bool) {
	switch resourceType {
	case storage.CollectionChannelInfo:
		return store.ChannelInfo(), true
	case storage.CollectionLoginSettings:
		return store.LoginSettings(), true
	default:
		return nil, false
	}
}
