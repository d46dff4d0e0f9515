package model

import "encoding/json"

// PgConfig is the persisted shape of a PostgreSQL connection, owned by the
// external collaborator but defined here for wire compatibility (spec §6).
type PgConfig struct {
	Host            string `json:"host"`
	Port            uint16 `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	Database        string `json:"database"`
	UseSSL          bool   `json:"use_ssl"`
	SlotName        string `json:"slot_name"`
	PublicationName string `json:"publication_name"`
}

func DefaultPgConfig() PgConfig {
	return PgConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "postgres",
		SlotName:        "dbwatch_slot",
		PublicationName: "dbwatch_pub",
	}
}

// SupabaseConfig is the persisted shape of a hosted realtime connection.
type SupabaseConfig struct {
	URL      string   `json:"url"`
	AnonKey  string   `json:"anon_key"`
	Tables   []string `json:"tables"`
	Schemas  []string `json:"schemas"`
}

func DefaultSupabaseConfig() SupabaseConfig {
	return SupabaseConfig{Schemas: []string{"public"}}
}

// ConnectionType distinguishes which kind of config a ConnectionProfile
// carries.
type ConnectionType string

const (
	ConnectionPostgres ConnectionType = "postgres"
	ConnectionSupabase ConnectionType = "supabase"
)

// ConnectionProfile is the persisted, UI-facing connection profile
// container (spec §6). Persistence itself lives outside the core; this
// type exists so the boundary has a concrete shape to hand the UI.
//
// Config carries either a PgConfig or a SupabaseConfig under a single
// "config" key rather than splitting the two into separate optional
// fields: which shape Config holds is determined by Type, not by a
// second wire-level tag.
type ConnectionProfile struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       ConnectionType  `json:"type"`
	Config     json.RawMessage `json:"config"`
	Color      *string         `json:"color,omitempty"`
	IsDefault  bool            `json:"is_default"`
	CreatedAt  string          `json:"created_at"`
	LastUsedAt *string         `json:"last_used_at,omitempty"`
}

// DecodePgConfig unmarshals Config as a PgConfig. Callers should check
// Type == ConnectionPostgres first.
func (p ConnectionProfile) DecodePgConfig() (PgConfig, error) {
	var cfg PgConfig
	err := json.Unmarshal(p.Config, &cfg)
	return cfg, err
}

// DecodeSupabaseConfig unmarshals Config as a SupabaseConfig. Callers
// should check Type == ConnectionSupabase first.
func (p ConnectionProfile) DecodeSupabaseConfig() (SupabaseConfig, error) {
	var cfg SupabaseConfig
	err := json.Unmarshal(p.Config, &cfg)
	return cfg, err
}

// NewPostgresProfile builds a ConnectionProfile wrapping cfg as its
// "config" payload, typed postgres.
func NewPostgresProfile(id, name string, cfg PgConfig) (ConnectionProfile, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ConnectionProfile{}, err
	}
	return ConnectionProfile{ID: id, Name: name, Type: ConnectionPostgres, Config: raw}, nil
}

// NewSupabaseProfile builds a ConnectionProfile wrapping cfg as its
// "config" payload, typed supabase.
func NewSupabaseProfile(id, name string, cfg SupabaseConfig) (ConnectionProfile, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ConnectionProfile{}, err
	}
	return ConnectionProfile{ID: id, Name: name, Type: ConnectionSupabase, Config: raw}, nil
}
