package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/routeros"
	"i4.energy/across/atbridge/secret"
)

// ErrInvalidPort is returned when the SSH port is outside 1..65535. It is
// always wrapped together with modem.ErrConfiguration.
var ErrInvalidPort = errors.New("ssh port must be between 1 and 65535")

// Settings are the persisted router connection settings.
//
// Marshalling Settings to JSON masks the password; the file store writes the
// plain value through its own record type.
type Settings struct {
	Host        string       `json:"host"`
	Port        int          `json:"ssh_port"`
	Username    string       `json:"username"`
	Password    secret.Value `json:"password"`
	Interface   string       `json:"interface"`
	CommandTool string       `json:"at_command_tool"`
	CommandArgs string       `json:"at_command_args"`
	Debug       bool         `json:"debug"`
}

// Defaults returns the settings used when nothing is stored yet.
func Defaults() Settings {
	return Settings{
		Port:        modem.DefaultSSHPort,
		CommandTool: routeros.AtChatPath,
	}
}

// Validate checks that the settings are complete enough to reach the modem.
// Errors wrap modem.ErrConfiguration.
func (s Settings) Validate() error {
	if err := s.validatePort(); err != nil {
		return err
	}
	return s.Target().Validate()
}

func (s Settings) validatePort() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: %w: got %d", modem.ErrConfiguration, ErrInvalidPort, s.Port)
	}
	return nil
}

// Target returns the part of the settings a modem.Dialer needs.
func (s Settings) Target() modem.Target {
	return modem.Target{
		Host:      strings.TrimSpace(s.Host),
		Port:      s.Port,
		Username:  s.Username,
		Password:  s.Password,
		Interface: strings.TrimSpace(s.Interface),
	}
}

// Builder returns the remote command builder selected by CommandTool.
func (s Settings) Builder() (modem.Builder, error) {
	return modem.BuilderFor(s.CommandTool, s.CommandArgs)
}

func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("target", s.Target()),
		slog.String("command_tool", s.CommandTool),
		slog.Bool("debug", s.Debug),
	)
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"ssh_port,omitempty"`
	Username    *string `json:"username,omitempty"`
	Password    *string `json:"password,omitempty"`
	Interface   *string `json:"interface,omitempty"`
	CommandTool *string `json:"at_command_tool,omitempty"`
	CommandArgs *string `json:"at_command_args,omitempty"`
	Debug       *bool   `json:"debug,omitempty"`
}

// Apply returns s with the patch applied. A password that is empty or equal
// to secret.Mask keeps the current one.
func (p Patch) Apply(s Settings) Settings {
	if p.Host != nil {
		s.Host = strings.TrimSpace(*p.Host)
	}
	if p.Port != nil {
		s.Port = *p.Port
	}
	if p.Username != nil {
		s.Username = strings.TrimSpace(*p.Username)
	}
	if p.Password != nil && !secret.IsMask(*p.Password) {
		s.Password = secret.New(*p.Password)
	}
	if p.Interface != nil {
		s.Interface = strings.TrimSpace(*p.Interface)
	}
	if p.CommandTool != nil {
		s.CommandTool = strings.TrimSpace(*p.CommandTool)
	}
	if p.CommandArgs != nil {
		s.CommandArgs = *p.CommandArgs
	}
	if p.Debug != nil {
		s.Debug = *p.Debug
	}
	return s
}
