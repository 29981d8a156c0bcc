package service

import (
	"context"
	"errors"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/storage"
)

// NewTransactionService builds the transaction endpoint, a thin
// reconcile echo over the account store.
func NewTransactionService(bus *events.EventBus, store storage.Store) *Service {
	s := NewService("transaction", bus)
	s.NoAuth()
	s.Handle(protocol.SymReconcileRequest, reconcileHandler(s, store))
	return s
}

func reconcileHandler(s *Service, store storage.Store) HandlerFunc {
	return func(ctx context.Context, peer *Peer, msg protocol.Message) error {
		req := msg.(*protocol.ReconcileRequest)
		if req.UserID == "" {
			return errors.New("reconcile request without platform id")
		}

		doc, err := store.Accounts().Get(req.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			doc = storage.NewAccountDocument(req.UserID, req.UserID)
			if err := store.Accounts().Set(req.UserID, doc); err != nil {
				s.log.Error().Err(err).Str("user_id", req.UserID).Msg("Account create failed")
				return err
			}
		} else if err != nil {
			s.log.Error().Err(err).Str("user_id", req.UserID).Msg("Account load failed")
			return err
		}

		return peer.Send(&protocol.ReconcileSuccess{UserID: req.UserID, Document: doc})
	}
}
