// Package clans is the clan directory the territory engine consults for membership,
// permissions and morale. Clan management itself lives outside the engine; Registry
// is the in-process implementation seeded from clans.yaml.
package clans

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	modelpkg "warfront.gg/internal/sim/world/kernel/model"
)

type Permission string

const (
	PermClaim        Permission = "claim"
	PermUnclaim      Permission = "unclaim"
	PermDeclareWar   Permission = "declare_war"
	PermBankDeposit  Permission = "bank_deposit"
	PermBankWithdraw Permission = "bank_withdraw"
)

// Directory is the read-side contract the engine depends on.
type Directory interface {
	ClanOf(participantID string) *modelpkg.ClanRef
	ClanByName(name string) *modelpkg.ClanRef
	ClanByID(clanID string) *modelpkg.ClanRef
	HasPermission(participantID, clanID string, perm Permission) bool
	// Morale is an external clan-health signal. A clan is attackable while its
	// morale is below its territory count.
	Morale(clanID string) int
}

var rolePerms = map[modelpkg.ClanRole][]Permission{
	modelpkg.ClanLeader:  {PermClaim, PermUnclaim, PermDeclareWar, PermBankDeposit, PermBankWithdraw},
	modelpkg.ClanOfficer: {PermClaim, PermUnclaim, PermDeclareWar, PermBankDeposit},
	modelpkg.ClanMember:  {PermBankDeposit},
}

var (
	ErrClanExists   = errors.New("clans: clan already exists")
	ErrUnknownClan  = errors.New("clans: unknown clan")
	ErrBadName      = errors.New("clans: invalid clan name")
	ErrAlreadyInOne = errors.New("clans: participant already in a clan")
)

type Clan struct {
	ID      string
	Name    string
	Tag     string
	Morale  int
	Members map[string]modelpkg.ClanRole
}

type Registry struct {
	mu       sync.RWMutex
	clans    map[string]*Clan
	byName   map[string]string
	memberOf map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		clans:    map[string]*Clan{},
		byName:   map[string]string{},
		memberOf: map[string]string{},
	}
}

func ValidateName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= 32
}

func nameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *Registry) Create(id, name, tag string) error {
	if strings.TrimSpace(id) == "" || !ValidateName(name) {
		return ErrBadName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clans[id]; ok {
		return fmt.Errorf("%w: %s", ErrClanExists, id)
	}
	if _, ok := r.byName[nameKey(name)]; ok {
		return fmt.Errorf("%w: %s", ErrClanExists, name)
	}
	r.clans[id] = &Clan{ID: id, Name: strings.TrimSpace(name), Tag: tag, Members: map[string]modelpkg.ClanRole{}}
	r.byName[nameKey(name)] = id
	return nil
}

func (r *Registry) AddMember(clanID, participantID string, role modelpkg.ClanRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clans[clanID]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownClan, clanID)
	}
	if cur, ok := r.memberOf[participantID]; ok && cur != clanID {
		return fmt.Errorf("%w: %s", ErrAlreadyInOne, participantID)
	}
	if role == "" {
		role = modelpkg.ClanMember
	}
	c.Members[participantID] = role
	r.memberOf[participantID] = clanID
	return nil
}

// RemoveMember drops a participant. A departing leader is replaced by the
// lowest-id remaining member.
func (r *Registry) RemoveMember(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clanID, ok := r.memberOf[participantID]
	if !ok {
		return
	}
	delete(r.memberOf, participantID)
	c := r.clans[clanID]
	if c == nil {
		return
	}
	wasLeader := c.Members[participantID] == modelpkg.ClanLeader
	delete(c.Members, participantID)
	if wasLeader {
		ids := make([]string, 0, len(c.Members))
		for id := range c.Members {
			ids = append(ids, id)
		}
		if next := SelectNextLeader(ids); next != "" {
			c.Members[next] = modelpkg.ClanLeader
		}
	}
}

func SelectNextLeader(memberIDs []string) string {
	if len(memberIDs) == 0 {
		return ""
	}
	copied := append([]string(nil), memberIDs...)
	slices.Sort(copied)
	return copied[0]
}

func (r *Registry) SetMorale(clanID string, morale int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.clans[clanID]; c != nil {
		c.Morale = morale
	}
}

func (r *Registry) ClanOf(participantID string) *modelpkg.ClanRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refLocked(r.memberOf[participantID])
}

func (r *Registry) ClanByName(name string) *modelpkg.ClanRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refLocked(r.byName[nameKey(name)])
}

func (r *Registry) ClanByID(clanID string) *modelpkg.ClanRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refLocked(clanID)
}

func (r *Registry) refLocked(clanID string) *modelpkg.ClanRef {
	if clanID == "" {
		return nil
	}
	c := r.clans[clanID]
	if c == nil {
		return nil
	}
	return &modelpkg.ClanRef{ID: c.ID, Name: c.Name, Tag: c.Tag}
}

func (r *Registry) HasPermission(participantID, clanID string, perm Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clans[clanID]
	if c == nil {
		return false
	}
	role, ok := c.Members[participantID]
	if !ok {
		return false
	}
	return slices.Contains(rolePerms[role], perm)
}

func (r *Registry) Morale(clanID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.clans[clanID]; c != nil {
		return c.Morale
	}
	return 0
}

// IDs returns all clan ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clans))
	for id := range r.clans {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

type seedFile struct {
	Clans []struct {
		ID      string            `yaml:"id"`
		Name    string            `yaml:"name"`
		Tag     string            `yaml:"tag"`
		Morale  int               `yaml:"morale"`
		Members map[string]string `yaml:"members"` // participant id -> role
	} `yaml:"clans"`
}

// LoadSeed builds a registry from a clans.yaml file.
func LoadSeed(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("clans.yaml: %w", err)
	}
	r := NewRegistry()
	for _, c := range sf.Clans {
		if err := r.Create(c.ID, c.Name, c.Tag); err != nil {
			return nil, fmt.Errorf("clans.yaml: %w", err)
		}
		r.SetMorale(c.ID, c.Morale)
		for pid, role := range c.Members {
			if err := r.AddMember(c.ID, pid, modelpkg.ClanRole(strings.ToUpper(strings.TrimSpace(role)))); err != nil {
				return nil, fmt.Errorf("clans.yaml: %w", err)
			}
		}
	}
	return r, nil
}
