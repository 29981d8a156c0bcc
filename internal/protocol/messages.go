package protocol

func init() {
	register(SymLoginRequest, func() Message { return &LoginRequest{} })
	register(SymLoginSuccess, func() Message { return &LoginSuccess{} })
	register(SymLoginFailure, func() Message { return &LoginFailure{} })
	register(SymConfigRequest, func() Message { return &ConfigRequest{} })
	register(SymConfigSuccess, func() Message { return &ConfigSuccess{} })
	register(SymConfigFailure, func() Message { return &ConfigFailure{} })
	register(SymFindSessionRequest, func() Message { return &FindSessionRequest{} })
	register(SymMatchSuccess, func() Message { return &MatchSuccess{} })
	register(SymMatchFailure, func() Message { return &MatchFailure{} })
	register(SymReconcileRequest, func() Message { return &ReconcileRequest{} })
	register(SymReconcileSuccess, func() Message { return &ReconcileSuccess{} })
	register(SymRegistrationRequest, func() Message { return &RegistrationRequest{} })
	register(SymRegistrationSuccess, func() Message { return &RegistrationSuccess{} })
	register(SymRegistrationFailure, func() Message { return &RegistrationFailure{} })
	register(SymSessionStartNotify, func() Message { return &SessionStartNotify{} })
	register(SymSessionEndNotify, func() Message { return &SessionEndNotify{} })
	register(SymPlayerJoinNotify, func() Message { return &PlayerJoinNotify{} })
	register(SymPlayerLeaveNotify, func() Message { return &PlayerLeaveNotify{} })
	register(SymSessionLockNotify, func() Message { return &SessionLockNotify{} })
}

// LoginRequest is the login service handshake: the client presents its
// platform identity and desired display name.
type LoginRequest struct {
	UserID      string
	DisplayName string
	AuthToken   string
}

func (m *LoginRequest) Symbol() int64 { return SymLoginRequest }

func (m *LoginRequest) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.UserID)
	w.String(m.DisplayName)
	w.String(m.AuthToken)
	return w.Done()
}

func (m *LoginRequest) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.UserID, err = r.String(); err != nil {
		return err
	}
	if m.DisplayName, err = r.String(); err != nil {
		return err
	}
	m.AuthToken, err = r.String()
	return err
}

// LoginSuccess confirms authentication and echoes the resolved identity.
type LoginSuccess struct {
	UserID      string
	DisplayName string
}

func (m *LoginSuccess) Symbol() int64 { return SymLoginSuccess }

func (m *LoginSuccess) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.UserID)
	w.String(m.DisplayName)
	return w.Done()
}

func (m *LoginSuccess) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.UserID, err = r.String(); err != nil {
		return err
	}
	m.DisplayName, err = r.String()
	return err
}

// LoginFailure rejects a handshake with a reason.
type LoginFailure struct {
	Reason string
}

func (m *LoginFailure) Symbol() int64 { return SymLoginFailure }

func (m *LoginFailure) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Reason)
	return w.Done()
}

func (m *LoginFailure) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.Reason, err = r.String()
	return err
}

// ConfigRequest asks the config service for a named resource document.
type ConfigRequest struct {
	Type       string
	Identifier string
}

func (m *ConfigRequest) Symbol() int64 { return SymConfigRequest }

func (m *ConfigRequest) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Type)
	w.String(m.Identifier)
	return w.Done()
}

func (m *ConfigRequest) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.Type, err = r.String(); err != nil {
		return err
	}
	m.Identifier, err = r.String()
	return err
}

// ConfigSuccess carries a resource document back to the requester.
type ConfigSuccess struct {
	Type       string
	Identifier string
	Document   []byte
}

func (m *ConfigSuccess) Symbol() int64 { return SymConfigSuccess }

func (m *ConfigSuccess) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Type)
	w.String(m.Identifier)
	w.Bytes(m.Document)
	return w.Done()
}

func (m *ConfigSuccess) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.Type, err = r.String(); err != nil {
		return err
	}
	if m.Identifier, err = r.String(); err != nil {
		return err
	}
	m.Document, err = r.Bytes()
	return err
}

// ConfigFailure reports a missing or unreadable resource.
type ConfigFailure struct {
	Type       string
	Identifier string
	Reason     string
}

func (m *ConfigFailure) Symbol() int64 { return SymConfigFailure }

func (m *ConfigFailure) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Type)
	w.String(m.Identifier)
	w.String(m.Reason)
	return w.Done()
}

func (m *ConfigFailure) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.Type, err = r.String(); err != nil {
		return err
	}
	if m.Identifier, err = r.String(); err != nil {
		return err
	}
	m.Reason, err = r.String()
	return err
}

// FindSessionRequest is a player's matchmaking request.
type FindSessionRequest struct {
	VersionLock    int64
	LobbyType      uint8
	RegionSymbol   int64
	GameTypeSymbol int64
	LevelSymbol    int64
	Channel        string
	Team           int16
}

func (m *FindSessionRequest) Symbol() int64 { return SymFindSessionRequest }

func (m *FindSessionRequest) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.Int64(m.VersionLock)
	w.Uint8(m.LobbyType)
	w.Int64(m.RegionSymbol)
	w.Int64(m.GameTypeSymbol)
	w.Int64(m.LevelSymbol)
	w.String(m.Channel)
	w.Int16(m.Team)
	return w.Done()
}

func (m *FindSessionRequest) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.VersionLock, err = r.Int64(); err != nil {
		return err
	}
	if m.LobbyType, err = r.Uint8(); err != nil {
		return err
	}
	if m.RegionSymbol, err = r.Int64(); err != nil {
		return err
	}
	if m.GameTypeSymbol, err = r.Int64(); err != nil {
		return err
	}
	if m.LevelSymbol, err = r.Int64(); err != nil {
		return err
	}
	if m.Channel, err = r.String(); err != nil {
		return err
	}
	m.Team, err = r.Int16()
	return err
}

// MatchSuccess directs the player to an assigned session.
type MatchSuccess struct {
	ServerID  uint64
	SessionID string
	Endpoint  string
	Port      uint16
	SlotID    string
	Team      int16
}

func (m *MatchSuccess) Symbol() int64 { return SymMatchSuccess }

func (m *MatchSuccess) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.Uint64(m.ServerID)
	w.String(m.SessionID)
	w.String(m.Endpoint)
	w.Uint16(m.Port)
	w.String(m.SlotID)
	w.Int16(m.Team)
	return w.Done()
}

func (m *MatchSuccess) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.ServerID, err = r.Uint64(); err != nil {
		return err
	}
	if m.SessionID, err = r.String(); err != nil {
		return err
	}
	if m.Endpoint, err = r.String(); err != nil {
		return err
	}
	if m.Port, err = r.Uint16(); err != nil {
		return err
	}
	if m.SlotID, err = r.String(); err != nil {
		return err
	}
	m.Team, err = r.Int16()
	return err
}

// MatchFailure reports a retryable matchmaking outcome.
type MatchFailure struct {
	Reason string
}

func (m *MatchFailure) Symbol() int64 { return SymMatchFailure }

func (m *MatchFailure) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Reason)
	return w.Done()
}

func (m *MatchFailure) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.Reason, err = r.String()
	return err
}

// ReconcileRequest asks the transaction service for the requester's
// account document.
type ReconcileRequest struct {
	UserID string
}

func (m *ReconcileRequest) Symbol() int64 { return SymReconcileRequest }

func (m *ReconcileRequest) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.UserID)
	return w.Done()
}

func (m *ReconcileRequest) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.UserID, err = r.String()
	return err
}

// ReconcileSuccess returns the opaque account document.
type ReconcileSuccess struct {
	UserID   string
	Document []byte
}

func (m *ReconcileSuccess) Symbol() int64 { return SymReconcileSuccess }

func (m *ReconcileSuccess) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.UserID)
	w.Bytes(m.Document)
	return w.Done()
}

func (m *ReconcileSuccess) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.UserID, err = r.String(); err != nil {
		return err
	}
	m.Document, err = r.Bytes()
	return err
}

// RegistrationRequest is a dedicated game server's request to join the
// registry.
type RegistrationRequest struct {
	ServerID        uint64
	InternalAddress string
	Port            uint16
	RegionSymbol    int64
	VersionLock     int64
}

func (m *RegistrationRequest) Symbol() int64 { return SymRegistrationRequest }

func (m *RegistrationRequest) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.Uint64(m.ServerID)
	w.String(m.InternalAddress)
	w.Uint16(m.Port)
	w.Int64(m.RegionSymbol)
	w.Int64(m.VersionLock)
	return w.Done()
}

func (m *RegistrationRequest) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.ServerID, err = r.Uint64(); err != nil {
		return err
	}
	if m.InternalAddress, err = r.String(); err != nil {
		return err
	}
	if m.Port, err = r.Uint16(); err != nil {
		return err
	}
	if m.RegionSymbol, err = r.Int64(); err != nil {
		return err
	}
	m.VersionLock, err = r.Int64()
	return err
}

// RegistrationSuccess confirms a registration and reports the external
// address the relay observed for the server.
type RegistrationSuccess struct {
	ServerID        uint64
	ExternalAddress string
}

func (m *RegistrationSuccess) Symbol() int64 { return SymRegistrationSuccess }

func (m *RegistrationSuccess) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.Uint64(m.ServerID)
	w.String(m.ExternalAddress)
	return w.Done()
}

func (m *RegistrationSuccess) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.ServerID, err = r.Uint64(); err != nil {
		return err
	}
	m.ExternalAddress, err = r.String()
	return err
}

// RegistrationFailure rejects a registration with a reason.
type RegistrationFailure struct {
	Reason string
}

func (m *RegistrationFailure) Symbol() int64 { return SymRegistrationFailure }

func (m *RegistrationFailure) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.Reason)
	return w.Done()
}

func (m *RegistrationFailure) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.Reason, err = r.String()
	return err
}

// SessionStartNotify reports that the sending game server has started a
// session with the given final state.
type SessionStartNotify struct {
	SessionID      string
	LobbyType      uint8
	LevelSymbol    int64
	GameTypeSymbol int64
	Channel        string
	PlayerLimit    uint8
	// ActiveTarget is a fixed active-participant target; negative means
	// no fixed target.
	ActiveTarget int16
}

func (m *SessionStartNotify) Symbol() int64 { return SymSessionStartNotify }

func (m *SessionStartNotify) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.SessionID)
	w.Uint8(m.LobbyType)
	w.Int64(m.LevelSymbol)
	w.Int64(m.GameTypeSymbol)
	w.String(m.Channel)
	w.Uint8(m.PlayerLimit)
	w.Int16(m.ActiveTarget)
	return w.Done()
}

func (m *SessionStartNotify) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.SessionID, err = r.String(); err != nil {
		return err
	}
	if m.LobbyType, err = r.Uint8(); err != nil {
		return err
	}
	if m.LevelSymbol, err = r.Int64(); err != nil {
		return err
	}
	if m.GameTypeSymbol, err = r.Int64(); err != nil {
		return err
	}
	if m.Channel, err = r.String(); err != nil {
		return err
	}
	if m.PlayerLimit, err = r.Uint8(); err != nil {
		return err
	}
	m.ActiveTarget, err = r.Int16()
	return err
}

// SessionEndNotify reports that the sending game server's session ended.
type SessionEndNotify struct{}

func (m *SessionEndNotify) Symbol() int64 { return SymSessionEndNotify }

func (m *SessionEndNotify) MarshalPayload() ([]byte, error) { return nil, nil }

func (m *SessionEndNotify) UnmarshalPayload(data []byte) error { return nil }

// PlayerJoinNotify reports a player slot filled on the sending server's
// session.
type PlayerJoinNotify struct {
	SlotID string
	UserID string
	Team   int16
}

func (m *PlayerJoinNotify) Symbol() int64 { return SymPlayerJoinNotify }

func (m *PlayerJoinNotify) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.SlotID)
	w.String(m.UserID)
	w.Int16(m.Team)
	return w.Done()
}

func (m *PlayerJoinNotify) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	if m.SlotID, err = r.String(); err != nil {
		return err
	}
	if m.UserID, err = r.String(); err != nil {
		return err
	}
	m.Team, err = r.Int16()
	return err
}

// PlayerLeaveNotify reports a player slot vacated.
type PlayerLeaveNotify struct {
	SlotID string
}

func (m *PlayerLeaveNotify) Symbol() int64 { return SymPlayerLeaveNotify }

func (m *PlayerLeaveNotify) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.String(m.SlotID)
	return w.Done()
}

func (m *PlayerLeaveNotify) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.SlotID, err = r.String()
	return err
}

// SessionLockNotify toggles whether the sending server's session
// accepts new joins.
type SessionLockNotify struct {
	Locked bool
}

func (m *SessionLockNotify) Symbol() int64 { return SymSessionLockNotify }

func (m *SessionLockNotify) MarshalPayload() ([]byte, error) {
	var w fieldWriter
	w.Bool(m.Locked)
	return w.Done()
}

func (m *SessionLockNotify) UnmarshalPayload(data []byte) error {
	r := newFieldReader(data)
	var err error
	m.Locked, err = r.Bool()
	return err
}
