package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/storage"
)

// NewLoginService builds the login endpoint: the platform-id handshake
// that checks the access-control list and loads or creates the account
// document.
func NewLoginService(bus *events.EventBus, store storage.Store, policy DuplicateAuthPolicy) *Service {
	s := NewService("login", bus)
	s.SetDuplicatePolicy(policy)
	s.AllowPreAuth(protocol.SymLoginRequest)
	s.Handle(protocol.SymLoginRequest, loginHandler(s, store))
	return s
}

func loginHandler(s *Service, store storage.Store) HandlerFunc {
	return func(ctx context.Context, peer *Peer, msg protocol.Message) error {
		req := msg.(*protocol.LoginRequest)
		if req.UserID == "" {
			return errors.New("login request without platform id")
		}

		allowed, err := checkACL(store, req.UserID)
		if err != nil {
			s.log.Error().Err(err).Msg("Access control check failed")
			return peer.Send(&protocol.LoginFailure{Reason: "internal error"})
		}
		s.emit(ctx, events.EventAuthorizationResult, events.AuthorizationPayload{
			ServiceName: s.name,
			RemoteAddr:  peer.RemoteAddr(),
			Authorized:  allowed,
		})
		if !allowed {
			s.log.Warn().
				Str("user_id", req.UserID).
				Str("remote_addr", peer.RemoteAddr()).
				Msg("Login denied by access control list")
			return peer.Send(&protocol.LoginFailure{Reason: "access denied"})
		}

		displayName, err := loadOrCreateAccount(store, req.UserID, req.DisplayName)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", req.UserID).Msg("Account load failed")
			return peer.Send(&protocol.LoginFailure{Reason: "internal error"})
		}

		if err := s.Authenticate(ctx, peer, req.UserID, displayName); err != nil {
			if errors.Is(err, ErrDuplicateIdentity) {
				if sendErr := peer.Send(&protocol.LoginFailure{Reason: "already logged in"}); sendErr != nil {
					return sendErr
				}
				return err
			}
			return err
		}
		s.log.Info().
			Str("user_id", req.UserID).
			Str("display_name", displayName).
			Msg("Login succeeded")
		return peer.Send(&protocol.LoginSuccess{UserID: req.UserID, DisplayName: displayName})
	}
}

// checkACL evaluates the stored access-control list; a store without
// one falls back to the allow-all default.
func checkACL(store storage.Store, userID string) (bool, error) {
	doc, err := storage.GetSingleton(store.AccessControlList())
	if errors.Is(err, storage.ErrNotFound) {
		doc = storage.DefaultAccessControlDocument()
	} else if err != nil {
		return false, fmt.Errorf("load access control list: %w", err)
	}
	return storage.CheckAccess(doc, userID)
}

// loadOrCreateAccount returns the account's stored display name,
// creating the document on first login.
func loadOrCreateAccount(store storage.Store, userID, requestedName string) (string, error) {
	accounts := store.Accounts()
	doc, err := accounts.Get(userID)
	if errors.Is(err, storage.ErrNotFound) {
		if requestedName == "" {
			requestedName = userID
		}
		doc = storage.NewAccountDocument(userID, requestedName)
		if err := accounts.Set(userID, doc); err != nil {
			return "", fmt.Errorf("create account %s: %w", userID, err)
		}
		return requestedName, nil
	}
	if err != nil {
		return "", fmt.Errorf("load account %s: %w", userID, err)
	}
	_, displayName, err := storage.AccountIdentity(doc)
	if err != nil {
		return "", fmt.Errorf("parse account %s: %w", userID, err)
	}
	return displayName, nil
}
