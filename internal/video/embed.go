package video

import (
	"errors"
	"fmt"
	"strings"

	"classhub/pkg/types"
)

var ErrMissingTenant = errors.New("video tenant is required")

// Config names the hosted meeting service
type Config struct {
	Domain string `json:"domain"`
	Tenant string `json:"tenant"`
}

// DefaultConfig points at the 8x8 hosted service
func DefaultConfig() Config {
	return Config{Domain: "8x8.vc"}
}

// Embed is everything a browser needs to mount the meeting widget.
// The client mounts it on entering the session view and disposes it on leaving.
type Embed struct {
	Domain    string `json:"domain"`
	ScriptURL string `json:"script_url"`
	RoomName  string `json:"room_name"`
}

// Rooms builds per-class room descriptors
type Rooms struct {
	config Config
}

// NewRooms validates config and returns a room builder
func NewRooms(config Config) (*Rooms, error) {
	config.Domain = strings.TrimSpace(config.Domain)
	config.Tenant = strings.Trim(strings.TrimSpace(config.Tenant), "/")
	if config.Domain == "" {
		config.Domain = DefaultConfig().Domain
	}
	if config.Tenant == "" {
		return nil, ErrMissingTenant
	}
	return &Rooms{config: config}, nil
}

// For returns the embed for a class. One room per class; the id is stable so
// everyone who joins the same class lands in the same meeting.
func (r *Rooms) For(class *types.ClassSession) Embed {
	return Embed{
		Domain:    r.config.Domain,
		ScriptURL: fmt.Sprintf("https://%s/%s/external_api.js", r.config.Domain, r.config.Tenant),
		RoomName:  fmt.Sprintf("%s/classhub-%s", r.config.Tenant, class.ID),
	}
}
