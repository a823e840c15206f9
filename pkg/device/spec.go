package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Spec describes a device to create.
type Spec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Host     string   `json:"ipAddress"`
	Port     int      `json:"port"`
	Protocol string   `json:"protocol"`
	Settings Settings `json:"settings"`
}

// Validate checks the spec and returns its parsed enums.
// Failures are classified as ValidationFailed.
func (s *Spec) Validate() (Type, Protocol, error) {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	typ, err := ParseType(s.Type)
	if err != nil {
		errs = append(errs, fmt.Errorf("type must be one of %s", joinNames(Types)))
	}
	proto, err := ParseProtocol(s.Protocol)
	if err != nil {
		errs = append(errs, fmt.Errorf("protocol must be one of %s", joinNames(Protocols)))
	}
	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, errors.New("ipAddress is required"))
	}
	if err := validatePort(s.Port); err != nil {
		errs = append(errs, err)
	}
	if err := s.Settings.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return TypeUnknown, ProtocolUnknown, Wrap(ReasonValidationFailed, "", errors.Join(errs...))
	}
	return typ, proto, nil
}

// Patch describes a partial update. Nil fields are left unchanged.
//
// ID and CreatedAt exist only so that attempts to change them can be
// rejected; any non-nil value fails validation. Status is not patchable.
type Patch struct {
	ID        *string   `json:"id,omitempty"`
	CreatedAt *string   `json:"createdAt,omitempty"`
	Name      *string   `json:"name,omitempty"`
	Type      *string   `json:"type,omitempty"`
	Host      *string   `json:"ipAddress,omitempty"`
	Port      *int      `json:"port,omitempty"`
	Protocol  *string   `json:"protocol,omitempty"`
	Settings  *Settings `json:"settings,omitempty"`
}

// Apply validates the patch and applies it to r in place.
// r is left untouched on error.
func (p *Patch) Apply(r *Record) error {
	var errs []error
	if p.ID != nil && *p.ID != r.ID {
		errs = append(errs, errors.New("id is immutable"))
	}
	if p.CreatedAt != nil {
		errs = append(errs, errors.New("createdAt is immutable"))
	}
	next := r.Clone()
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			errs = append(errs, errors.New("name must not be empty"))
		}
		next.Name = *p.Name
	}
	if p.Type != nil {
		typ, err := ParseType(*p.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("type must be one of %s", joinNames(Types)))
		}
		next.Type = typ
	}
	if p.Host != nil {
		if strings.TrimSpace(*p.Host) == "" {
			errs = append(errs, errors.New("ipAddress must not be empty"))
		}
		next.Host = *p.Host
	}
	if p.Port != nil {
		if err := validatePort(*p.Port); err != nil {
			errs = append(errs, err)
		}
		next.Port = *p.Port
	}
	if p.Protocol != nil {
		proto, err := ParseProtocol(*p.Protocol)
		if err != nil {
			errs = append(errs, fmt.Errorf("protocol must be one of %s", joinNames(Protocols)))
		}
		next.Protocol = proto
	}
	if p.Settings != nil {
		if err := p.Settings.validate(); err != nil {
			errs = append(errs, err)
		}
		next.Settings = p.Settings.Clone()
	}
	if len(errs) > 0 {
		return Wrap(ReasonValidationFailed, r.ID, errors.Join(errs...))
	}
	*r = *next
	return nil
}

func (s Settings) validate() error {
	if s.CharacterRateLimit < 0 {
		return errors.New("settings.characterRateLimit must not be negative")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1..65535", port)
	}
	return nil
}

func joinNames[T fmt.Stringer](vs []T) string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.String()
	}
	return strings.Join(names, ", ")
}

// New builds an OFFLINE record from a validated spec with a fresh id.
func New(s Spec, now time.Time) (*Record, error) {
	typ, proto, err := s.Validate()
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(s.Name),
		Type:      typ,
		Address:   Address{Host: strings.TrimSpace(s.Host), Port: s.Port},
		Protocol:  proto,
		Settings:  s.Settings.Clone(),
		Status:    StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
